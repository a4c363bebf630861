package events

const defaultBufferSize = 256

type settings struct {
	capacity     int
	bufferSize   int
	errorHandler ErrorHandler
}

// Option configures an event dispatcher.
type Option func(*settings)

// WithCapacity pre-allocates the handler map for n event types.
func WithCapacity(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithBufferSize sets the size of the Publish queue.
func WithBufferSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithErrorHandler sets the callback for handler errors raised during Publish delivery.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(s *settings) {
		s.errorHandler = fn
	}
}
