// Package trace carries request correlation identifiers from a context onto
// outbound request headers.
package trace

import (
	"context"
	nethttp "net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderXRequestID is the default header carrying the request id.
const HeaderXRequestID = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// EnsureRequestID returns the id stored in ctx or a new random uuid.
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.New().String()
}

// Inject writes the request id under header (HeaderXRequestID when empty)
// unless the caller already set one, then lets the global OpenTelemetry
// propagator add W3C trace context for the active span. It returns the id
// that the request carries.
func Inject(ctx context.Context, h nethttp.Header, header string) string {
	if header == "" {
		header = HeaderXRequestID
	}
	id := h.Get(header)
	if id == "" {
		id = EnsureRequestID(ctx)
		h.Set(header, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
	return id
}
