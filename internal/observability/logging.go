// Package observability enriches structured logs with request correlation
// fields so one delivery can be followed from the HTTP layer through the
// reconciler and router.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	requestIDKey  = contextKey("request_id")
	deliveryIDKey = contextKey("delivery_id")
)

// WithRequestMetadata stores request correlation fields on the context.
func WithRequestMetadata(ctx context.Context, requestID, deliveryID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	deliveryID = strings.TrimSpace(deliveryID)
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}
	if deliveryID != "" {
		ctx = context.WithValue(ctx, deliveryIDKey, deliveryID)
	}
	return ctx
}

// RequestIDFromContext extracts the request id.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	return value, ok && value != ""
}

// DeliveryIDFromContext extracts the webhook delivery id.
func DeliveryIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(deliveryIDKey).(string)
	return value, ok && value != ""
}

type correlatingHandler struct {
	next slog.Handler
}

// WrapSlogHandler adds request, delivery, and trace fields to log records.
func WrapSlogHandler(next slog.Handler) slog.Handler {
	if next == nil {
		next = slog.NewTextHandler(io.Discard, nil)
	}
	return &correlatingHandler{next: next}
}

func (h *correlatingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *correlatingHandler) Handle(ctx context.Context, record slog.Record) error {
	if requestID, ok := RequestIDFromContext(ctx); ok {
		record.AddAttrs(slog.String("request_id", requestID))
	}
	if deliveryID, ok := DeliveryIDFromContext(ctx); ok {
		record.AddAttrs(slog.String("delivery_id", deliveryID))
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	return h.next.Handle(ctx, record)
}

func (h *correlatingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlatingHandler{next: h.next.WithAttrs(attrs)}
}

func (h *correlatingHandler) WithGroup(name string) slog.Handler {
	return &correlatingHandler{next: h.next.WithGroup(name)}
}
