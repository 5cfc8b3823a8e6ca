// Package requestcontext carries request-scoped values through context so
// services can read them without importing net/http. Middleware sets them.
package requestcontext

import (
	"context"
	"time"
)

type key int

const (
	actorIDKey key = iota
	clientIPKey
	userAgentKey
	requestIDKey
	requestTimeKey
)

func str(ctx context.Context, k key) string {
	s, _ := ctx.Value(k).(string)
	return s
}

// ActorID is the authenticated operator, or "" for anonymous and
// background work.
func ActorID(ctx context.Context) string { return str(ctx, actorIDKey) }

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

func ClientIP(ctx context.Context) string { return str(ctx, clientIPKey) }

// UserAgent is the raw header. Parse it with middleware/device before
// storing it anywhere.
func UserAgent(ctx context.Context) string { return str(ctx, userAgentKey) }

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func RequestID(ctx context.Context) string { return str(ctx, requestIDKey) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now returns the time the request arrived, or time.Now outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
