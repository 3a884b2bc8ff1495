// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import "context"

type contextKey string

const (
	userIDKey    contextKey = "ctxutil.userID"
	namespaceKey contextKey = "ctxutil.namespace"
	requestIDKey contextKey = "ctxutil.requestID"
	botIDKey     contextKey = "ctxutil.botID"
)

// WithUserID adds a platform user ID to the context. The user ID comes from
// inbound webhook events and follows the event through queueing and dispatch.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the platform user ID from the context.
// Returns the empty string if not set.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithNamespace adds a queue namespace to the context.
func WithNamespace(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, namespaceKey, namespace)
}

// GetNamespace retrieves the queue namespace from the context.
func GetNamespace(ctx context.Context) string {
	if v, ok := ctx.Value(namespaceKey).(string); ok {
		return v
	}
	return ""
}

// WithRequestID adds a request/event ID to the context for tracing.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request/event ID from the context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithBotID adds a bot type identifier to the context.
func WithBotID(ctx context.Context, botID string) context.Context {
	return context.WithValue(ctx, botIDKey, botID)
}

// GetBotID retrieves the bot type identifier from the context.
func GetBotID(ctx context.Context) string {
	if v, ok := ctx.Value(botIDKey).(string); ok {
		return v
	}
	return ""
}
