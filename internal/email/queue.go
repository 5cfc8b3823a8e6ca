// Package email implements the best-effort outbound email queue: bounded,
// FIFO with retry rotation, and drained one job per tick.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"corpdesk/internal/platform/clock"
	"corpdesk/internal/platform/logger"
	"corpdesk/internal/platform/worker"
	addr "corpdesk/pkg/email"
)

const (
	DefaultCapacity     = 100
	DefaultTTL          = time.Hour
	DefaultTickInterval = 2 * time.Second
	DefaultMinInterval  = time.Second
	DefaultMaxRetries   = 3
)

type Queue struct {
	sender Sender
	clock  clock.Clock
	logger *slog.Logger
	metric *Metrics
	tracer trace.Tracer

	capacity     int
	ttl          time.Duration
	tickInterval time.Duration
	minInterval  time.Duration
	maxRetries   int

	mu          sync.Mutex
	jobs        []*Job
	inFlight    *Job
	lastAttempt time.Time

	processing atomic.Bool

	workerMu sync.Mutex
	worker   *worker.Periodic
}

type Option func(*Queue)

func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.ttl = d
		}
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.tickInterval = d
		}
	}
}

// WithMinInterval sets the minimum spacing between transport attempts.
// Zero disables the gate.
func WithMinInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.minInterval = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(q *Queue) {
		q.metric = m
	}
}

func New(sender Sender, opts ...Option) (*Queue, error) {
	if sender == nil {
		return nil, errors.New("email sender is required")
	}
	q := &Queue{
		sender:       sender,
		clock:        clock.Real{},
		logger:       logger.Discard(),
		tracer:       otel.Tracer("corpdesk/email"),
		capacity:     DefaultCapacity,
		ttl:          DefaultTTL,
		tickInterval: DefaultTickInterval,
		minInterval:  DefaultMinInterval,
		maxRetries:   DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue accepts a message for later delivery. It never blocks on the
// transport and never returns an error; rejected messages are reported in
// the result and logged.
func (q *Queue) Enqueue(ctx context.Context, msg Message) EnqueueResult {
	if !q.sender.Configured() {
		cleared := q.clear()
		q.metric.record(OutcomeDroppedUnconfigured, 1+cleared)
		q.logger.DebugContext(ctx, "email transport not configured, message discarded",
			"subject", msg.Subject,
			"cleared", cleared,
		)
		return EnqueueResult{Reason: ErrTransportUnconfigured}
	}

	to, err := addr.NormalizeAddress(msg.To)
	if err != nil {
		q.logger.WarnContext(ctx, "email rejected: invalid recipient", "error", err)
		return EnqueueResult{Reason: fmt.Errorf("%w: %w", ErrInvalidMessage, err)}
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return EnqueueResult{Reason: fmt.Errorf("%w: subject is required", ErrInvalidMessage)}
	}
	msg.To = to

	job := &Job{
		ID:         uuid.New(),
		Message:    msg,
		MaxRetries: q.maxRetries,
		EnqueuedAt: q.clock.Now(),
	}

	q.mu.Lock()
	pending := q.pendingLocked()
	if pending >= q.capacity {
		q.mu.Unlock()
		q.metric.record(OutcomeDroppedFull, 1)
		q.logger.WarnContext(ctx, "email queue full, dropping message",
			"recipient", to,
			"subject", msg.Subject,
			"capacity", q.capacity,
		)
		return EnqueueResult{Reason: ErrQueueFull}
	}
	q.jobs = append(q.jobs, job)
	pending++
	q.mu.Unlock()

	q.metric.setPending(pending)
	q.logger.DebugContext(ctx, "email enqueued", "job_id", job.ID, "pending", pending)
	return EnqueueResult{JobID: job.ID, Accepted: true}
}

// Status reports pending jobs (the one in flight included) and whether a
// tick is currently running.
func (q *Queue) Status() Status {
	q.mu.Lock()
	pending := q.pendingLocked()
	q.mu.Unlock()
	return Status{Pending: pending, IsProcessing: q.processing.Load()}
}

// Tick runs one processing step: stale jobs are evicted across the whole
// queue, then at most one job is attempted. Overlapping calls return
// OutcomeBusy without touching the queue.
func (q *Queue) Tick(ctx context.Context) TickReport {
	if !q.processing.CompareAndSwap(false, true) {
		return TickReport{Outcome: OutcomeBusy}
	}
	defer q.processing.Store(false)

	if !q.sender.Configured() {
		cleared := q.clear()
		q.metric.record(OutcomeDroppedUnconfigured, cleared)
		return TickReport{Evicted: cleared, Outcome: OutcomeDroppedUnconfigured, Err: ErrTransportUnconfigured}
	}

	now := q.clock.Now()

	q.mu.Lock()
	evicted := q.evictStaleLocked(ctx, now)
	if len(q.jobs) == 0 {
		pending := q.pendingLocked()
		q.mu.Unlock()
		q.metric.setPending(pending)
		return q.idleReport(evicted)
	}
	if q.minInterval > 0 && !q.lastAttempt.IsZero() && now.Sub(q.lastAttempt) < q.minInterval {
		q.mu.Unlock()
		return TickReport{Evicted: evicted, Outcome: OutcomeThrottled}
	}
	job := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	q.inFlight = job
	q.lastAttempt = now
	q.mu.Unlock()

	err := q.send(ctx, job)

	q.mu.Lock()
	q.inFlight = nil
	report := TickReport{Evicted: evicted, Attempted: true, JobID: job.ID}
	switch {
	case err == nil:
		report.Outcome = OutcomeDelivered
	default:
		job.RetryCount++
		if job.RetryCount >= job.MaxRetries {
			report.Outcome = OutcomeExhausted
			report.Err = errors.Join(ErrRetriesExhausted, err)
		} else {
			q.jobs = append(q.jobs, job)
			report.Outcome = OutcomeRetried
			report.Err = err
		}
	}
	pending := q.pendingLocked()
	q.mu.Unlock()

	q.metric.setPending(pending)
	q.metric.record(report.Outcome, 1)
	switch report.Outcome {
	case OutcomeDelivered:
		q.logger.InfoContext(ctx, "email delivered", "job_id", job.ID, "retry_count", job.RetryCount)
	case OutcomeRetried:
		q.logger.WarnContext(ctx, "email delivery failed, will retry",
			"job_id", job.ID,
			"retry_count", job.RetryCount,
			"max_retries", job.MaxRetries,
			"error", err,
		)
	case OutcomeExhausted:
		q.logger.ErrorContext(ctx, "email delivery retries exhausted, dropping job",
			"job_id", job.ID,
			"recipient", job.Message.To,
			"retry_count", job.RetryCount,
			"error", err,
		)
	}
	return report
}

func (q *Queue) idleReport(evicted int) TickReport {
	if evicted > 0 {
		return TickReport{Evicted: evicted, Outcome: OutcomeStale}
	}
	return TickReport{Outcome: OutcomeIdle}
}

// send delivers one job. A sender panic is returned as a failed attempt so
// the in-flight slot is always released.
func (q *Queue) send(ctx context.Context, job *Job) (err error) {
	ctx, span := q.tracer.Start(ctx, "email.send",
		trace.WithAttributes(
			attribute.String("email.job_id", job.ID.String()),
			attribute.Int("email.retry_count", job.RetryCount),
		),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSenderPanicked, r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "sender panicked")
		}
	}()

	start := q.clock.Now()
	err = q.sender.Send(ctx, job.Message)
	q.metric.observeSend(q.clock.Now().Sub(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
	}
	return err
}

// evictStaleLocked drops every job older than the TTL, wherever it sits.
func (q *Queue) evictStaleLocked(ctx context.Context, now time.Time) int {
	kept := q.jobs[:0]
	evicted := 0
	for _, job := range q.jobs {
		if now.Sub(job.EnqueuedAt) > q.ttl {
			evicted++
			q.logger.DebugContext(ctx, "email job expired",
				"job_id", job.ID,
				"age", now.Sub(job.EnqueuedAt).String(),
			)
			continue
		}
		kept = append(kept, job)
	}
	for i := len(kept); i < len(q.jobs); i++ {
		q.jobs[i] = nil
	}
	q.jobs = kept
	q.metric.record(OutcomeStale, evicted)
	return evicted
}

func (q *Queue) clear() int {
	q.mu.Lock()
	n := len(q.jobs)
	q.jobs = nil
	q.mu.Unlock()
	q.metric.setPending(0)
	return n
}

func (q *Queue) pendingLocked() int {
	n := len(q.jobs)
	if q.inFlight != nil {
		n++
	}
	return n
}

// Start launches the periodic drain. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) error {
	q.workerMu.Lock()
	defer q.workerMu.Unlock()
	if q.worker != nil {
		return nil
	}
	w, err := worker.New("email-queue", q.tickInterval, func(ctx context.Context) error {
		q.Tick(ctx)
		return nil
	}, worker.WithClock(q.clock), worker.WithLogger(q.logger))
	if err != nil {
		return err
	}
	w.Start(ctx)
	q.worker = w
	return nil
}

// Stop halts the drain. Pending jobs are not flushed.
func (q *Queue) Stop() {
	q.workerMu.Lock()
	w := q.worker
	q.worker = nil
	q.workerMu.Unlock()
	if w != nil {
		w.Stop()
	}
}
