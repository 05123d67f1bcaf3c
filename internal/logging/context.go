package logging

import (
	"context"
	"log/slog"
	"strings"
)

type contextKey struct{}

type contextAttrs struct {
	runID string
	stage string
}

// WithRunID stores the run identifier in the context for logger decoration.
func WithRunID(ctx context.Context, runID string) context.Context {
	attrs := attrsFromContext(ctx)
	attrs.runID = strings.TrimSpace(runID)
	return context.WithValue(ctx, contextKey{}, attrs)
}

// WithStage stores the active stage name in the context for logger decoration.
func WithStage(ctx context.Context, stage string) context.Context {
	attrs := attrsFromContext(ctx)
	attrs.stage = strings.TrimSpace(stage)
	return context.WithValue(ctx, contextKey{}, attrs)
}

// WithContext returns a logger annotated with any run/stage attributes stored
// in the context. A nil logger yields a no-op logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := attrsFromContext(ctx)
	if attrs.runID != "" {
		logger = logger.With(String(FieldRunID, attrs.runID))
	}
	if attrs.stage != "" {
		logger = logger.With(String(FieldStage, attrs.stage))
	}
	return logger
}

// StageFromContext returns the stage name previously stored with WithStage.
func StageFromContext(ctx context.Context) string {
	return attrsFromContext(ctx).stage
}

func attrsFromContext(ctx context.Context) contextAttrs {
	if ctx == nil {
		return contextAttrs{}
	}
	if attrs, ok := ctx.Value(contextKey{}).(contextAttrs); ok {
		return attrs
	}
	return contextAttrs{}
}
