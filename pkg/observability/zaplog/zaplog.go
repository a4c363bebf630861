// Package zaplog adapts a zap logger to observability.Logger.
package zaplog

import (
	"context"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logger struct {
	zl *zap.Logger
}

// New wraps zl. A nil logger is replaced by zap.NewNop.
func New(zl *zap.Logger) observability.Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &logger{zl: zl}
}

// NewProduction builds a JSON logger at the given level.
func NewProduction(level observability.LogLevel) (observability.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(zl), nil
}

// ParseLevel maps a LogLevel to a zap level. Unknown values map to info.
func ParseLevel(level observability.LogLevel) zapcore.Level {
	switch level {
	case observability.LogLevelDebug:
		return zapcore.DebugLevel
	case observability.LogLevelWarn:
		return zapcore.WarnLevel
	case observability.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *logger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	l.zl.Debug(msg, toZapFields(fields)...)
}

func (l *logger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	l.zl.Info(msg, toZapFields(fields)...)
}

func (l *logger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	l.zl.Warn(msg, toZapFields(fields)...)
}

func (l *logger) Error(ctx context.Context, msg string, fields ...observability.Field) {
	l.zl.Error(msg, toZapFields(fields)...)
}

func (l *logger) With(fields ...observability.Field) observability.Logger {
	return &logger{zl: l.zl.With(toZapFields(fields)...)}
}

func toZapFields(fields []observability.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
