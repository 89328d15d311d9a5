package outcome

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "client_identity"
)

// WithRequestID stores the correlation id on ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation id stored on ctx, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithIdentity stores the rate-limit identity of the caller on ctx
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Identity returns the caller identity stored on ctx, if any
func Identity(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(string)
	return id
}
