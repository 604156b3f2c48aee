// Package observability carries per-task logging context through
// context.Context so every log line of a build names its task and stage.
package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildexecutor/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	TaskID     string
	ExecutorID string
	Image      string
	Stage      string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithTaskID adds a task ID to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	lc := extractLogContext(ctx)
	lc.TaskID = taskID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithExecutorID adds the executor ID to the context.
func WithExecutorID(ctx context.Context, executorID string) context.Context {
	lc := extractLogContext(ctx)
	lc.ExecutorID = executorID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithImage adds the target image name to the context.
func WithImage(ctx context.Context, image string) context.Context {
	lc := extractLogContext(ctx)
	lc.Image = image
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage adds a pipeline stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

// Attrs returns the slog attributes carried by ctx.
func Attrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := make([]slog.Attr, 0, 4)
	if lc.TaskID != "" {
		attrs = append(attrs, logfields.TaskID(lc.TaskID))
	}
	if lc.ExecutorID != "" {
		attrs = append(attrs, logfields.ExecutorID(lc.ExecutorID))
	}
	if lc.Image != "" {
		attrs = append(attrs, logfields.Image(lc.Image))
	}
	if lc.Stage != "" {
		attrs = append(attrs, logfields.Stage(lc.Stage))
	}
	return attrs
}

// Log writes msg at level to logger (slog.Default when nil) with the
// context attributes prepended to attrs.
func Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, level, msg, append(Attrs(ctx), attrs...)...)
}
