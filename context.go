package taskdesk

import "context"

type ctxKey string

const ctxKeyRequestID ctxKey = "taskdesk_request_id"

// WithRequestID stores a correlation ID in the context. The transport layer
// propagates it as the X-Request-ID header instead of minting its own.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext extracts the correlation ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}
