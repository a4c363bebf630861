package actions

import (
	"errors"
	"fmt"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/events"
	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"github.com/JailtonJunior94/actionflow/pkg/observability/noop"
)

// Config holds registry-wide settings.
type Config struct {
	// Name identifies the registry in logs, spans and lifecycle events.
	// Default: "default"
	Name string

	// MaxHandlers caps the handlers registered per action.
	// Default: 100
	MaxHandlers int

	// MaxRetries caps handler and dispatch retry counts.
	// Default: 3
	MaxRetries int

	// RetryDelay is the wait between retry attempts. Zero retries immediately.
	RetryDelay time.Duration

	// ExponentialRetry grows the wait between attempts starting at RetryDelay.
	ExponentialRetry bool

	// DefaultMode is used when neither the dispatch nor the action sets a mode.
	// Default: sequential
	DefaultMode Mode

	// Debug logs every dispatch completion.
	Debug bool

	// AutoCleanup forgets an action, including its mode override, once its
	// last handler is removed.
	// Default: true
	AutoCleanup bool

	// StrictActions makes dispatching an action without handlers an error.
	StrictActions bool

	// EventBufferSize sizes the lifecycle event queue of an owned bus.
	// Default: 256
	EventBufferSize int
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		MaxHandlers:     100,
		MaxRetries:      3,
		DefaultMode:     ModeSequential,
		AutoCleanup:     true,
		EventBufferSize: 256,
	}
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("Name is required and cannot be empty"))
	}

	if c.MaxHandlers <= 0 {
		errs = append(errs, errors.New("MaxHandlers must be greater than 0"))
	}

	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("MaxRetries must be greater than or equal to 0"))
	}

	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("RetryDelay must be greater than or equal to 0"))
	}

	if c.ExponentialRetry && c.RetryDelay == 0 {
		errs = append(errs, errors.New("RetryDelay is required when ExponentialRetry is true"))
	}

	if !c.DefaultMode.valid() {
		errs = append(errs, fmt.Errorf("DefaultMode %q is not a valid mode", c.DefaultMode))
	}

	if c.EventBufferSize <= 0 {
		errs = append(errs, errors.New("EventBufferSize must be greater than 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOption, errors.Join(errs...))
	}

	return nil
}

type settings struct {
	config Config
	obs    observability.Observability
	bus    events.EventDispatcher
}

// Option configures a Registry.
type Option func(*settings)

// WithConfig replaces the whole configuration. Later options still apply on top.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.config = cfg
	}
}

// WithName sets the registry name.
func WithName(name string) Option {
	return func(s *settings) {
		s.config.Name = name
	}
}

// WithMaxHandlers sets the per-action handler ceiling.
func WithMaxHandlers(n int) Option {
	return func(s *settings) {
		s.config.MaxHandlers = n
	}
}

// WithMaxRetries caps retries.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		s.config.MaxRetries = n
	}
}

// WithRetryDelay sets a constant delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(s *settings) {
		s.config.RetryDelay = d
	}
}

// WithExponentialRetry grows retry delays exponentially from RetryDelay.
func WithExponentialRetry() Option {
	return func(s *settings) {
		s.config.ExponentialRetry = true
	}
}

// WithDefaultMode sets the registry-wide execution mode.
func WithDefaultMode(mode Mode) Option {
	return func(s *settings) {
		s.config.DefaultMode = mode
	}
}

// WithDebug enables per-dispatch debug logging.
func WithDebug() Option {
	return func(s *settings) {
		s.config.Debug = true
	}
}

// WithAutoCleanup toggles removal of empty actions.
func WithAutoCleanup(enabled bool) Option {
	return func(s *settings) {
		s.config.AutoCleanup = enabled
	}
}

// WithStrictActions rejects dispatches to actions without handlers.
func WithStrictActions() Option {
	return func(s *settings) {
		s.config.StrictActions = true
	}
}

// WithEventBufferSize sizes the lifecycle queue of the owned event bus.
func WithEventBufferSize(n int) Option {
	return func(s *settings) {
		s.config.EventBufferSize = n
	}
}

// WithObservability sets the logging, tracing and metrics provider.
// Default: noop.
func WithObservability(obs observability.Observability) Option {
	return func(s *settings) {
		s.obs = obs
	}
}

// WithEventBus publishes lifecycle events to an external bus. The registry
// does not close a bus it does not own.
func WithEventBus(bus events.EventDispatcher) Option {
	return func(s *settings) {
		s.bus = bus
	}
}

func newSettings(opts []Option) settings {
	s := settings{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.obs == nil {
		s.obs = noop.NewProvider()
	}
	return s
}
