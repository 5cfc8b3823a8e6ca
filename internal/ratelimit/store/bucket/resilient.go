package bucket

import (
	"context"
	"log/slog"
	"time"

	"corpdesk/internal/platform/logger"
	"corpdesk/internal/ratelimit/models"
	"corpdesk/internal/ratelimit/ports"
	"corpdesk/pkg/platform/circuit"
)

// ResilientStore serves from a primary store (Redis) and fails over to an
// in-memory fallback once the circuit opens. Results served by the fallback
// are marked Degraded.
type ResilientStore struct {
	primary  ports.BucketStore
	fallback ports.BucketStore
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewResilient(primary, fallback ports.BucketStore, breaker *circuit.Breaker, lg *slog.Logger) *ResilientStore {
	if breaker == nil {
		breaker = circuit.New("ratelimit-store")
	}
	if lg == nil {
		lg = logger.Discard()
	}
	return &ResilientStore{primary: primary, fallback: fallback, breaker: breaker, logger: lg}
}

func (s *ResilientStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	result, err := s.primary.Allow(ctx, key, limit, window)
	if err != nil {
		useFallback, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "rate limit store circuit opened, serving from memory", "breaker", s.breaker.Name(), "error", err)
		}
		if !useFallback {
			return nil, err
		}
		return s.degraded(ctx, key, limit, window)
	}

	usePrimary, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "rate limit store circuit closed", "breaker", s.breaker.Name())
	}
	if !usePrimary {
		return s.degraded(ctx, key, limit, window)
	}
	return result, nil
}

func (s *ResilientStore) degraded(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	result, err := s.fallback.Allow(ctx, key, limit, window)
	if err != nil {
		return nil, err
	}
	result.Degraded = true
	return result, nil
}

// Reset clears both stores so an admin reset holds across failover.
func (s *ResilientStore) Reset(ctx context.Context, key string) error {
	if err := s.fallback.Reset(ctx, key); err != nil {
		return err
	}
	return s.primary.Reset(ctx, key)
}

func (s *ResilientStore) GetCurrentCount(ctx context.Context, key string, window time.Duration) (int, error) {
	if s.breaker.IsOpen() {
		return s.fallback.GetCurrentCount(ctx, key, window)
	}
	return s.primary.GetCurrentCount(ctx, key, window)
}

func (s *ResilientStore) Sweep(ctx context.Context) (int, error) {
	removed, err := s.fallback.Sweep(ctx)
	if err != nil {
		return removed, err
	}
	n, err := s.primary.Sweep(ctx)
	return removed + n, err
}
