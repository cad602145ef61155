package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type runCtxKey struct{}
type itemCtxKey struct{}
type modeCtxKey struct{}

// WithRunID stores the run identifier in the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run identifier or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runCtxKey{}).(string)
	return id
}

// WithItemID stores the todo item identifier in the context.
func WithItemID(ctx context.Context, itemID string) context.Context {
	return context.WithValue(ctx, itemCtxKey{}, itemID)
}

// ItemIDFromContext returns the todo item identifier or "".
func ItemIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(itemCtxKey{}).(string)
	return id
}

// WithMode stores the active mode name in the context.
func WithMode(ctx context.Context, mode string) context.Context {
	return context.WithValue(ctx, modeCtxKey{}, mode)
}

// ModeFromContext returns the active mode name or "".
func ModeFromContext(ctx context.Context) string {
	m, _ := ctx.Value(modeCtxKey{}).(string)
	return m
}

// ContextFields extracts correlation data from the context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}
	if itemID := ItemIDFromContext(ctx); itemID != "" {
		fields = append(fields, zap.String("item_id", itemID))
	}
	if mode := ModeFromContext(ctx); mode != "" {
		fields = append(fields, zap.String("mode", mode))
	}
	return fields
}
