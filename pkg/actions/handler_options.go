package actions

import (
	"time"
)

type handlerSettings struct {
	info       HandlerInfo
	condition  any
	validation any
	errs       []error
}

// HandlerOption configures a registration. Options are resolved once, at
// Register, into an immutable HandlerInfo.
type HandlerOption func(*handlerSettings)

// WithID sets the handler id. Default: a generated ULID.
func WithID(id string) HandlerOption {
	return func(s *handlerSettings) {
		s.info.ID = id
	}
}

// WithPriority orders the handler; higher runs first. Default: 0.
func WithPriority(priority int) HandlerOption {
	return func(s *handlerSettings) {
		s.info.Priority = priority
	}
}

// WithBlocking sets whether the pipeline awaits the handler. Default: true.
func WithBlocking(blocking bool) HandlerOption {
	return func(s *handlerSettings) {
		s.info.Blocking = blocking
	}
}

// NonBlocking runs the handler without awaiting it in sequential mode. Its
// errors are recorded but never stop the pipeline.
func NonBlocking() HandlerOption {
	return WithBlocking(false)
}

// Once removes the handler after its first successful run.
func Once() HandlerOption {
	return func(s *handlerSettings) {
		s.info.Once = true
	}
}

// WithCondition skips the handler when fn returns false. P must match the
// registry payload type.
func WithCondition[P any](fn func(P) bool) HandlerOption {
	return func(s *handlerSettings) {
		s.condition = fn
		s.info.HasCondition = fn != nil
	}
}

// WithValidation skips the handler when fn rejects the payload.
func WithValidation[P any](fn func(P) bool) HandlerOption {
	return func(s *handlerSettings) {
		s.validation = fn
		s.info.HasValidation = fn != nil
	}
}

// WithTags labels the handler for filtering.
func WithTags(tags ...string) HandlerOption {
	return func(s *handlerSettings) {
		s.info.Tags = append(s.info.Tags, tags...)
	}
}

// WithCategory sets the handler category.
func WithCategory(category string) HandlerOption {
	return func(s *handlerSettings) {
		s.info.Category = category
	}
}

// WithEnvironment restricts the handler to dispatches filtered for env.
func WithEnvironment(env Environment) HandlerOption {
	return func(s *handlerSettings) {
		s.info.Environment = env
	}
}

// WithFeature ties the handler to a feature name.
func WithFeature(feature string) HandlerOption {
	return func(s *handlerSettings) {
		s.info.Feature = feature
	}
}

// WithDependencies runs the handler only when every listed handler also qualifies.
func WithDependencies(ids ...string) HandlerOption {
	return func(s *handlerSettings) {
		s.info.Dependencies = append(s.info.Dependencies, ids...)
	}
}

// WithConflicts forbids registering alongside the listed handlers.
func WithConflicts(ids ...string) HandlerOption {
	return func(s *handlerSettings) {
		s.info.Conflicts = append(s.info.Conflicts, ids...)
	}
}

// WithHandlerTimeout bounds every attempt of the handler.
func WithHandlerTimeout(d time.Duration) HandlerOption {
	return func(s *handlerSettings) {
		if d < 0 {
			s.errs = append(s.errs, invalidOption("handler timeout must not be negative"))
			return
		}
		s.info.Timeout = d
	}
}

// WithHandlerRetries re-invokes a failed handler up to n times, capped by Config.MaxRetries.
func WithHandlerRetries(n int) HandlerOption {
	return func(s *handlerSettings) {
		if n < 0 {
			s.errs = append(s.errs, invalidOption("handler retries must not be negative"))
			return
		}
		s.info.Retries = n
	}
}

// WithMetadata attaches free-form metadata, reported in handler outcomes.
func WithMetadata(key, value string) HandlerOption {
	return func(s *handlerSettings) {
		if s.info.Metadata == nil {
			s.info.Metadata = make(map[string]string)
		}
		s.info.Metadata[key] = value
	}
}
