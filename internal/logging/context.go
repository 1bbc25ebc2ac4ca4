// Package logging carries a structured logger through context.Context
package logging

import (
	"context"
	"log/slog"
	"os"
)

type loggerContextKey struct{}

// FromContext returns the logger stored in ctx, or a JSON logger tagged as fallback
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger)
	if !ok || logger == nil {
		fallback := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		fallback = fallback.With(slog.String("logger", "fallback"))
		return fallback
	}
	return logger
}

func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

func AddMetaToContext(ctx context.Context, args ...slog.Attr) context.Context {
	logger := FromContext(ctx)

	anySlice := make([]any, len(args))
	for i, arg := range args {
		anySlice[i] = arg
	}

	return AddToContext(ctx, logger.With(anySlice...))
}

// WithComponent derives the logger of a long lived component from the one in ctx
func WithComponent(ctx context.Context, component string) (context.Context, *slog.Logger) {
	logger := FromContext(ctx).With(slog.String("component", component))
	return AddToContext(ctx, logger), logger
}
