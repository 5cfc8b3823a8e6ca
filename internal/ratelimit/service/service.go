// Package service implements the category-based sliding window limiter.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"corpdesk/internal/audit"
	"corpdesk/internal/platform/clock"
	"corpdesk/internal/platform/logger"
	"corpdesk/internal/ratelimit/config"
	"corpdesk/internal/ratelimit/metrics"
	"corpdesk/internal/ratelimit/models"
	"corpdesk/internal/ratelimit/observability"
	"corpdesk/internal/ratelimit/ports"
	dErrors "corpdesk/pkg/domain-errors"
)

// Limiter admits or denies requests per (category, identifier). Check never
// fails: store errors and missing policies both resolve to a denial.
type Limiter struct {
	buckets  ports.BucketStore
	auditLog ports.AuditLog
	logger   *slog.Logger
	config   *config.Config
	metrics  *metrics.Metrics
	clock    clock.Clock
	tracer   trace.Tracer
}

type Option func(*Limiter)

func WithLogger(l *slog.Logger) Option {
	return func(s *Limiter) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithAuditLog(log ports.AuditLog) Option {
	return func(s *Limiter) {
		s.auditLog = log
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Limiter) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Limiter) {
		s.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Limiter) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(buckets ports.BucketStore, opts ...Option) (*Limiter, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}

	svc := &Limiter{
		buckets: buckets,
		config:  config.DefaultConfig(),
		logger:  logger.Discard(),
		clock:   clock.Real{},
		tracer:  otel.Tracer("corpdesk/ratelimit"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check records an admission for identifier under category if its window
// has room. Denials are side-effect free.
func (s *Limiter) Check(ctx context.Context, category models.Category, identifier string) *models.RateLimitResult {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, "ratelimit.Check",
		trace.WithAttributes(attribute.String("ratelimit.category", string(category))))
	defer span.End()

	result := s.check(ctx, category, identifier)

	span.SetAttributes(attribute.Bool("ratelimit.allowed", result.Allowed))
	if s.metrics != nil {
		s.metrics.ObserveCheck(s.clock.Now().Sub(start).Seconds())
	}
	return result
}

func (s *Limiter) check(ctx context.Context, category models.Category, identifier string) *models.RateLimitResult {
	policy, ok := s.config.Policy(category)
	if !ok {
		fallback, found := s.config.Fallback()
		observability.LogAudit(ctx, s.logger, nil, "rate_limit_config_missing",
			"category", string(category),
			"fallback_found", found,
		)
		s.record(category, metrics.OutcomeFallback)
		if !found {
			return s.deny(0, config.DefaultRetryAfter)
		}
		policy = fallback
	}

	key := models.NewRateLimitKey(category, identifier)
	result, err := s.buckets.Allow(ctx, key, policy.MaxRequests, policy.Window)
	if err != nil {
		s.logger.ErrorContext(ctx, "rate limit store failed, denying",
			"category", string(category),
			"error", err,
		)
		observability.LogAudit(ctx, nil, s.auditLog, audit.ActionRateLimitStoreDown,
			"key", key,
			"category", string(category),
		)
		s.record(category, metrics.OutcomeError)
		return s.deny(policy.MaxRequests, config.DefaultRetryAfter)
	}

	if result.Degraded && s.metrics != nil {
		s.metrics.IncrementDegraded()
	}

	if !result.Allowed {
		if result.RetryAfter < 1 {
			result.RetryAfter = 1
		}
		observability.LogAudit(ctx, s.logger, s.auditLog, audit.ActionRateLimitExceeded,
			"key", key,
			"category", string(category),
			"limit", policy.MaxRequests,
			"window_seconds", int(policy.Window.Seconds()),
			"retry_after", result.RetryAfter,
		)
		s.record(category, metrics.OutcomeDenied)
		return result
	}

	s.record(category, metrics.OutcomeAllowed)
	return result
}

func (s *Limiter) deny(limit, retryAfter int) *models.RateLimitResult {
	now := s.clock.Now()
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    now.Add(time.Duration(retryAfter) * time.Second),
		RetryAfter: retryAfter,
	}
}

func (s *Limiter) record(category models.Category, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordDecision(string(category), outcome)
	}
}

// Sweep removes identifiers whose windows are empty. Run periodically.
func (s *Limiter) Sweep(ctx context.Context) error {
	removed, err := s.buckets.Sweep(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit sweep failed")
	}
	if s.metrics != nil {
		s.metrics.AddSwept(removed)
	}
	if removed > 0 {
		s.logger.DebugContext(ctx, "rate limit sweep", "removed", removed)
	}
	return nil
}

// Reset clears the window for (category, identifier). Admin operation.
func (s *Limiter) Reset(ctx context.Context, category models.Category, identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}
	key := models.NewRateLimitKey(category, identifier)
	if err := s.buckets.Reset(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset rate limit")
	}
	observability.LogAudit(ctx, s.logger, s.auditLog, audit.ActionRateLimitReset,
		"key", key,
		"category", string(category),
	)
	return nil
}
