// Package admin exposes a read-only HTTP view of a registry: its actions,
// their handlers and counters, stored execution history and Prometheus
// metrics.
package admin

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/JailtonJunior94/actionflow/pkg/actions"
	"github.com/JailtonJunior94/actionflow/pkg/history"
	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"github.com/JailtonJunior94/actionflow/pkg/responses"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxHistoryLimit = 500

// ActionSummary is an entry of GET /actions.
type ActionSummary struct {
	Action   string              `json:"action"`
	Mode     actions.Mode        `json:"mode"`
	Handlers int                 `json:"handlers"`
	Stats    actions.ActionStats `json:"stats"`
}

// ActionDetail is the body of GET /actions/{action}.
type ActionDetail struct {
	Action   string                `json:"action"`
	Mode     actions.Mode          `json:"mode"`
	Handlers []actions.HandlerInfo `json:"handlers"`
	Stats    actions.ActionStats   `json:"stats"`
}

// Router serves the admin endpoints. It implements the Register(chi.Router)
// contract so it can be mounted on an existing chi server.
type Router struct {
	inspector actions.Inspector
	logger    observability.Logger
	store     history.Store
	gatherer  prometheus.Gatherer
}

// Option configures a Router.
type Option func(*Router)

// WithHistory enables GET /actions/{action}/history.
func WithHistory(store history.Store) Option {
	return func(r *Router) {
		r.store = store
	}
}

// WithGatherer enables GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(r *Router) {
		r.gatherer = g
	}
}

// New creates a router over inspector.
func New(inspector actions.Inspector, logger observability.Logger, opts ...Option) *Router {
	r := &Router{
		inspector: inspector,
		logger:    logger.With(observability.String("component", "admin"), observability.String("registry", inspector.Name())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns a standalone handler with request ids and panic recovery.
func (a *Router) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(a.recoverMiddleware)
	a.Register(router)
	return router
}

// Register mounts the routes on router.
func (a *Router) Register(router chi.Router) {
	router.Get("/actions", a.listActions)
	router.Get("/actions/{action}", a.getAction)
	if a.store != nil {
		router.Get("/actions/{action}/history", a.getHistory)
	}
	if a.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
}

func (a *Router) listActions(w http.ResponseWriter, _ *http.Request) {
	names := a.inspector.Actions()
	summaries := make([]ActionSummary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, ActionSummary{
			Action:   name,
			Mode:     a.inspector.ActionMode(name),
			Handlers: len(a.inspector.Registrations(name)),
			Stats:    a.inspector.Stats(name),
		})
	}
	responses.JSON(w, http.StatusOK, summaries)
}

func (a *Router) getAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")
	handlers := a.inspector.Registrations(name)
	stats := a.inspector.Stats(name)
	if len(handlers) == 0 && stats.Dispatches == 0 {
		responses.Error(w, http.StatusNotFound, "action not found")
		return
	}

	if handlers == nil {
		handlers = []actions.HandlerInfo{}
	}
	responses.JSON(w, http.StatusOK, ActionDetail{
		Action:   name,
		Mode:     a.inspector.ActionMode(name),
		Handlers: handlers,
		Stats:    stats,
	})
}

func (a *Router) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			responses.ErrorWithDetails(w, http.StatusBadRequest, "invalid limit",
				map[string]any{"limit": raw, "max": maxHistoryLimit})
			return
		}
		limit = n
	}

	executions, err := a.store.List(r.Context(), chi.URLParam(r, "action"), limit)
	if err != nil {
		a.logger.Error(r.Context(), "history query failed",
			observability.String("action", chi.URLParam(r, "action")),
			observability.String("request_id", middleware.GetReqID(r.Context())),
			observability.Error(err))

		status := http.StatusInternalServerError
		if errors.Is(err, history.ErrClosed) || errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		responses.Error(w, status, "history unavailable")
		return
	}
	responses.JSON(w, http.StatusOK, executions)
}

func (a *Router) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			a.logger.Error(r.Context(), "panic recovered",
				observability.String("path", r.URL.Path),
				observability.String("method", r.Method),
				observability.String("request_id", middleware.GetReqID(r.Context())),
				observability.String("stack", string(debug.Stack())),
				observability.Any("panic", recovered))
			responses.Error(w, http.StatusInternalServerError, "internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}
