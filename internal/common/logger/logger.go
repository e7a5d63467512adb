// internal/common/logger/logger.go
package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Logger is the structured logging interface shared by the receiver, the
// relay and the worker. Fields are passed as maps so call sites stay terse.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

// New builds a zap logger. Unknown levels fall back to info; format "json"
// selects the production encoder, anything else the console encoder.
// Outputs default to stdout; "server.log"-style paths are accepted as well.
func New(levelStr, format string, outputs ...string) *zap.Logger {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if len(outputs) > 0 {
		cfg.OutputPaths = outputs
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

type zapWrapper struct {
	l *zap.Logger
}

func (z *zapWrapper) Debug(msg string, fields map[string]interface{}) {
	z.l.Debug(msg, toZapFields(fields)...)
}

func (z *zapWrapper) Info(msg string, fields map[string]interface{}) {
	z.l.Info(msg, toZapFields(fields)...)
}

func (z *zapWrapper) Warn(msg string, fields map[string]interface{}) {
	z.l.Warn(msg, toZapFields(fields)...)
}

func (z *zapWrapper) Error(msg string, fields map[string]interface{}) {
	z.l.Error(msg, toZapFields(fields)...)
}

func (z *zapWrapper) WithFields(fields map[string]interface{}) Logger {
	return &zapWrapper{l: z.l.With(toZapFields(fields)...)}
}

func (z *zapWrapper) WithError(err error) Logger {
	return &zapWrapper{l: z.l.With(zap.Error(err))}
}

func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

// NewStructured creates a Logger backed by a freshly built zap logger.
func NewStructured(levelStr, format string, outputs ...string) Logger {
	return &zapWrapper{l: New(levelStr, format, outputs...)}
}

// NewZapAdapter wraps an existing *zap.Logger.
func NewZapAdapter(l *zap.Logger) Logger {
	return &zapWrapper{l: l}
}

// NewTestLogger routes output through testing.TB.
func NewTestLogger(t testing.TB) Logger {
	return &zapWrapper{l: zaptest.NewLogger(t)}
}

// NewNoOpLogger discards everything.
func NewNoOpLogger() Logger {
	return &zapWrapper{l: zap.NewNop()}
}
