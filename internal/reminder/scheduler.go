// Package reminder scans stored compliance deadlines and issues one reminder
// per deadline occurrence, deduplicated through an atomic claim.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"corpdesk/internal/audit"
	"corpdesk/internal/compliance"
	"corpdesk/internal/email"
	"corpdesk/internal/platform/clock"
	"corpdesk/internal/platform/logger"
	"corpdesk/internal/platform/worker"
	dErrors "corpdesk/pkg/domain-errors"
	"corpdesk/pkg/domain"
)

const (
	DefaultLeadTime     = 60 * 24 * time.Hour
	DefaultHalfWidth    = 5 * 24 * time.Hour
	DefaultDedupWindow  = 30 * 24 * time.Hour
	DefaultTickInterval = time.Hour
	DefaultInitialDelay = 30 * time.Second

	schedulerActor = "reminder-scheduler"
)

type outcome string

const (
	outcomeNotified outcome = "notified"
	outcomeSkipped  outcome = "skipped"
	outcomeFailed   outcome = "failed"
)

type Scheduler struct {
	deadlines     DeadlineReader
	notifications NotificationStore
	claims        Claims
	mailer        Mailer
	publisher     EventPublisher
	auditLog      AuditLog
	metrics       *Metrics
	clock         clock.Clock
	logger        *slog.Logger
	tracer        trace.Tracer
	replyTo       string

	leadTime     time.Duration
	halfWidth    time.Duration
	dedupWindow  time.Duration
	tickInterval time.Duration
	initialDelay time.Duration

	runMu    sync.Mutex
	workerMu sync.Mutex
	worker   *worker.Periodic
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPublisher emits an Event per issued reminder.
func WithPublisher(p EventPublisher) Option {
	return func(s *Scheduler) {
		s.publisher = p
	}
}

func WithAuditLog(a AuditLog) Option {
	return func(s *Scheduler) {
		s.auditLog = a
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithReplyTo(address string) Option {
	return func(s *Scheduler) {
		s.replyTo = address
	}
}

// WithWindow sets the reminder lead time and the half width of the scan
// window around it.
func WithWindow(lead, halfWidth time.Duration) Option {
	return func(s *Scheduler) {
		if lead > 0 && halfWidth >= 0 && halfWidth < lead {
			s.leadTime = lead
			s.halfWidth = halfWidth
		}
	}
}

func WithDedupWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.dedupWindow = d
		}
	}
}

// WithSchedule sets the tick interval and the delay before the first run.
func WithSchedule(interval, initialDelay time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
		if initialDelay >= 0 {
			s.initialDelay = initialDelay
		}
	}
}

func New(deadlines DeadlineReader, notifications NotificationStore, claims Claims, mailer Mailer, opts ...Option) (*Scheduler, error) {
	if deadlines == nil {
		return nil, errors.New("deadline reader is required")
	}
	if notifications == nil {
		return nil, errors.New("notification store is required")
	}
	if claims == nil {
		return nil, errors.New("claims store is required")
	}
	if mailer == nil {
		return nil, errors.New("mailer is required")
	}
	s := &Scheduler{
		deadlines:     deadlines,
		notifications: notifications,
		claims:        claims,
		mailer:        mailer,
		clock:         clock.Real{},
		logger:        logger.Discard(),
		tracer:        otel.Tracer("corpdesk/reminder"),
		leadTime:      DefaultLeadTime,
		halfWidth:     DefaultHalfWidth,
		dedupWindow:   DefaultDedupWindow,
		tickInterval:  DefaultTickInterval,
		initialDelay:  DefaultInitialDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Window returns the due-date range scanned at now.
func (s *Scheduler) Window(now time.Time) Window {
	today := compliance.DateOf(now)
	return Window{
		From: today.Add(s.leadTime - s.halfWidth),
		To:   today.Add(s.leadTime + s.halfWidth),
	}
}

// RunOnce scans every deadline type once. Per-candidate failures are logged
// and counted; only a failing deadline query is returned as an error, after
// the remaining types have been scanned.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.clock.Now()
	report := Report{Window: s.Window(now)}

	ctx, span := s.tracer.Start(ctx, "reminder.run",
		trace.WithAttributes(
			attribute.String("window.from", report.Window.From.Format(compliance.DateLayout)),
			attribute.String("window.to", report.Window.To.Format(compliance.DateLayout)),
		))
	defer span.End()

	var queryErrs []error
	for _, t := range compliance.AllDeadlineTypes {
		candidates, err := s.deadlines.DueBetween(ctx, t, report.Window.From, report.Window.To)
		if err != nil {
			queryErrs = append(queryErrs, fmt.Errorf("%s: %w", t, err))
			report.Errors = append(report.Errors, fmt.Sprintf("query %s: %v", t, err))
			s.logger.ErrorContext(ctx, "reminder deadline query failed",
				"deadline_type", string(t),
				"error", err,
			)
			continue
		}
		report.Candidates += len(candidates)
		for _, c := range candidates {
			o, err := s.process(ctx, c, now)
			switch o {
			case outcomeNotified:
				report.Notified++
			case outcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %v", c.Entity.ID, t, err))
			}
			s.countCandidate(t, o)
		}
	}

	span.SetAttributes(
		attribute.Int("reminder.candidates", report.Candidates),
		attribute.Int("reminder.notified", report.Notified),
	)
	if s.metrics != nil {
		s.metrics.RunDuration.Observe(s.clock.Now().Sub(now).Seconds())
	}

	logLevel := slog.LevelInfo
	if report.Failed > 0 || len(queryErrs) > 0 {
		logLevel = slog.LevelWarn
	}
	s.logger.Log(ctx, logLevel, "reminder scan finished",
		"candidates", report.Candidates,
		"notified", report.Notified,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)

	if len(queryErrs) > 0 {
		s.countRun("error")
		return report, dErrors.Wrap(errors.Join(queryErrs...), dErrors.CodeUnavailable, "query deadlines")
	}
	s.countRun("ok")
	return report, nil
}

// process handles one candidate. A panic is contained to the candidate.
func (s *Scheduler) process(ctx context.Context, c compliance.Candidate, now time.Time) (o outcome, err error) {
	key := DedupKey(c.Entity.ID, c.Deadline.Type, c.Deadline.DueDate)
	var claimed, recorded bool
	defer func() {
		if r := recover(); r != nil {
			o, err = outcomeFailed, fmt.Errorf("panic: %v", r)
			s.logger.ErrorContext(ctx, "reminder candidate panicked",
				"entity_id", c.Entity.ID.String(),
				"deadline_type", string(c.Deadline.Type),
				"panic", r,
			)
			if claimed && !recorded {
				if relErr := s.claims.Release(ctx, key); relErr != nil {
					s.logCandidateError(ctx, c, "release reminder claim", relErr)
				}
			}
		}
	}()

	claimed, err = s.claims.Claim(ctx, key, s.dedupWindow)
	if err != nil {
		s.logCandidateError(ctx, c, "claim reminder", err)
		return outcomeFailed, err
	}
	if !claimed {
		s.logger.DebugContext(ctx, "reminder already sent within dedup window",
			"entity_id", c.Entity.ID.String(),
			"deadline_type", string(c.Deadline.Type),
		)
		return outcomeSkipped, nil
	}

	// Claims may not outlive a restart; the notification store does.
	sent, err := s.notifications.SentSince(ctx, c.Entity.ID, c.Deadline.Type, now.Add(-s.dedupWindow))
	if err != nil {
		if relErr := s.claims.Release(ctx, key); relErr != nil {
			s.logCandidateError(ctx, c, "release reminder claim", relErr)
		}
		s.logCandidateError(ctx, c, "check recent notifications", err)
		return outcomeFailed, err
	}
	if sent {
		s.logger.DebugContext(ctx, "reminder already recorded within dedup window",
			"entity_id", c.Entity.ID.String(),
			"deadline_type", string(c.Deadline.Type),
		)
		return outcomeSkipped, nil
	}

	n, msg, err := s.compose(c, now)
	if err == nil {
		err = s.notifications.Create(ctx, n)
	}
	if err != nil {
		if relErr := s.claims.Release(ctx, key); relErr != nil {
			s.logCandidateError(ctx, c, "release reminder claim", relErr)
		}
		s.logCandidateError(ctx, c, "create notification", err)
		return outcomeFailed, err
	}
	recorded = true

	res := s.mailer.Enqueue(ctx, msg)
	if !res.Accepted {
		s.logger.WarnContext(ctx, "reminder email not queued",
			"entity_id", c.Entity.ID.String(),
			"notification_id", n.ID.String(),
			"reason", errString(res.Reason),
		)
	}

	if s.publisher != nil {
		evt := Event{
			NotificationID: n.ID,
			EntityID:       c.Entity.ID,
			EntityName:     c.Entity.Name,
			DeadlineType:   c.Deadline.Type,
			DueDate:        c.Deadline.DueDate.Format(compliance.DateLayout),
			Recipient:      n.Recipient,
			EmailQueued:    res.Accepted,
			OccurredAt:     n.CreatedAt,
		}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "reminder event not published",
				"notification_id", n.ID.String(),
				"error", err,
			)
		}
	}

	if s.auditLog != nil {
		s.auditLog.Append(ctx, audit.Entry{
			Action:   audit.ActionReminderSent,
			ActorID:  schedulerActor,
			TargetID: c.Entity.ID.String(),
			Details: map[string]string{
				"deadline_type":   string(c.Deadline.Type),
				"due_date":        c.Deadline.DueDate.Format(compliance.DateLayout),
				"notification_id": n.ID.String(),
				"email_queued":    fmt.Sprint(res.Accepted),
			},
		})
	}
	s.logger.InfoContext(ctx, "reminder issued",
		"entity_id", c.Entity.ID.String(),
		"deadline_type", string(c.Deadline.Type),
		"due_date", c.Deadline.DueDate.Format(compliance.DateLayout),
	)
	return outcomeNotified, nil
}

func (s *Scheduler) compose(c compliance.Candidate, now time.Time) (Notification, email.Message, error) {
	body, err := renderReminder(c, now)
	if err != nil {
		return Notification{}, email.Message{}, err
	}
	subject := subjectFor(c)
	n := Notification{
		ID:           domain.NewNotificationID(),
		EntityID:     c.Entity.ID,
		DeadlineType: c.Deadline.Type,
		DueDate:      c.Deadline.DueDate,
		Recipient:    c.Entity.OwnerEmail,
		Subject:      subject,
		CreatedAt:    now,
	}
	msg := email.Message{
		To:      c.Entity.OwnerEmail,
		Subject: subject,
		HTML:    body,
		ReplyTo: s.replyTo,
	}
	return n, msg, nil
}

func (s *Scheduler) logCandidateError(ctx context.Context, c compliance.Candidate, op string, err error) {
	s.logger.ErrorContext(ctx, "reminder candidate failed",
		"op", op,
		"entity_id", c.Entity.ID.String(),
		"deadline_type", string(c.Deadline.Type),
		"error", err,
	)
}

func (s *Scheduler) countCandidate(t compliance.DeadlineType, o outcome) {
	if s.metrics == nil {
		return
	}
	s.metrics.Candidates.WithLabelValues(string(t), string(o)).Inc()
}

func (s *Scheduler) countRun(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Runs.WithLabelValues(result).Inc()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Start schedules RunOnce every tick interval, with one run after the
// initial delay. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()
	if s.worker != nil {
		return nil
	}
	w, err := worker.New("reminder-scheduler", s.tickInterval, func(ctx context.Context) error {
		_, err := s.RunOnce(ctx)
		return err
	},
		worker.WithClock(s.clock),
		worker.WithLogger(s.logger),
		worker.WithInitialDelay(s.initialDelay),
	)
	if err != nil {
		return err
	}
	w.Start(ctx)
	s.worker = w
	return nil
}

func (s *Scheduler) Stop() {
	s.workerMu.Lock()
	w := s.worker
	s.worker = nil
	s.workerMu.Unlock()
	if w != nil {
		w.Stop()
	}
}
