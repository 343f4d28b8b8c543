// Package logger is the zap-backed logger shared by the server, the worker
// and the ledger services. Entries logged through a context carry the
// request's trace and actor ids.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "stockledger/internal/core/context"
)

// Logger is a sugared zap logger.
type Logger struct {
	*zap.SugaredLogger
}

type loggerKey struct{}

// Config selects level, encoding and sinks. An unknown Level means info;
// no OutputPaths means stdout.
type Config struct {
	Level       string
	Development bool // console encoding with colored levels
	OutputPaths []string
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	zcfg.OutputPaths = []string{"stdout"}
	if len(cfg.OutputPaths) > 0 {
		zcfg.OutputPaths = cfg.OutputPaths
	}

	z, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z.Sugar()}, nil
}

// NewWithCore wraps core, typically a zaptest observer.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{zap.New(core, zap.AddCallerSkip(1)).Sugar()}
}

var (
	fallbackOnce sync.Once
	fallback     *Logger
)

// Default is the info-level JSON logger used when a context carries none.
func Default() *Logger {
	fallbackOnce.Do(func() {
		l, err := New(Config{Level: "info"})
		if err != nil {
			l = &Logger{zap.NewNop().Sugar()}
		}
		fallback = l
	})
	return fallback
}

// WithContext returns l annotated with the trace and actor found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []any
	if tc := appctx.GetTrace(ctx); tc != nil {
		fields = append(fields, "trace_id", tc.TraceID, "request_id", tc.RequestID)
	}
	if actor := appctx.GetActor(ctx); actor != nil {
		fields = append(fields, "actor_id", actor.ID)
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(fields...)}
}

// With returns l with extra key-value pairs.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{l.SugaredLogger.With(keysAndValues...)}
}

// WithComponent tags entries with the subsystem that wrote them.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or Default, annotated
// with ctx's trace and actor.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(loggerKey{}).(*Logger)
	if !ok {
		l = Default()
	}
	return l.WithContext(ctx)
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}

// Fatal logs and exits the process.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Fatalw(msg, keysAndValues...)
}
