package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerConfig holds the listener settings of Server.
type ServerConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the settings used by NewServer.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:         ":9090",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Validate checks the timeouts and address.
func (c ServerConfig) Validate() error {
	if c.Address == "" {
		return errors.New("admin: address is required")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return fmt.Errorf("admin: timeouts must be positive (read %v, write %v, idle %v)",
			c.ReadTimeout, c.WriteTimeout, c.IdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("admin: shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}

// Server runs an admin Router on a dedicated HTTP listener.
type Server struct {
	config       ServerConfig
	logger       observability.Logger
	httpServer   *http.Server
	shutdownOnce sync.Once
}

// NewServer mounts routes on a chi router with request ids, panic recovery
// and a /live probe.
func NewServer(cfg ServerConfig, logger observability.Logger, routes *Router) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if routes == nil {
		return nil, errors.New("admin: router is required")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(routes.recoverMiddleware)
	router.Get("/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	routes.Register(router)

	return &Server{
		config: cfg,
		logger: logger.With(observability.String("component", "admin-server")),
		httpServer: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}, nil
}

// Start listens on the configured address and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("admin: listen %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info(ctx, "starting admin server", observability.String("address", ln.Addr().String()))

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		s.logger.Error(ctx, "admin server failed", observability.Error(err))
		return err
	case <-ctx.Done():
		s.logger.Info(ctx, "context cancelled, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the server. Calls after the first return nil.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "error shutting down admin server", observability.Error(err))
			shutdownErr = err
			return
		}
		s.logger.Info(ctx, "admin server stopped")
	})
	return shutdownErr
}
