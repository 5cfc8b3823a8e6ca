// Package ports defines shared interfaces for the ratelimit module.
package ports

import (
	"context"
	"time"

	"corpdesk/internal/audit"
	"corpdesk/internal/ratelimit/models"
)

// BucketStore manages sliding window rate limit counters.
type BucketStore interface {
	// Allow checks if a single request is allowed and records it if so.
	// A denied request is not recorded.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)

	// Reset clears the rate limit counter for a key.
	Reset(ctx context.Context, key string) error

	// GetCurrentCount returns the number of admissions newer than now-window.
	GetCurrentCount(ctx context.Context, key string, window time.Duration) (int, error)

	// Sweep drops keys whose windows hold no live timestamps.
	Sweep(ctx context.Context) (removed int, err error)
}

// AuditLog receives security-relevant rate limit events.
type AuditLog interface {
	Append(ctx context.Context, e audit.Entry) audit.Entry
}
