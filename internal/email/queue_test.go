package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"corpdesk/internal/platform/clock"
)

type fakeSender struct {
	mu         sync.Mutex
	configured bool
	fail       map[string]bool
	panics     map[string]bool
	sent       []Message
	attempts   []string
	entered    chan struct{}
	release    chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{configured: true, fail: map[string]bool{}, panics: map[string]bool{}}
}

func (f *fakeSender) Configured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, msg.To)
	entered, release := f.entered, f.release
	failing := f.fail[msg.To]
	panicking := f.panics[msg.To]
	f.mu.Unlock()

	if panicking {
		panic("smtp client: nil connection")
	}
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if failing {
		return errors.New("smtp: 451 temporary failure")
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) attemptLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

type QueueSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *clock.Fake
	sender  *fakeSender
	metrics *Metrics
	queue   *Queue
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}

func (s *QueueSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFake(time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC))
	s.sender = newFakeSender()
	s.metrics = NewMetrics(prometheus.NewRegistry())

	var err error
	s.queue, err = New(s.sender, WithClock(s.clock), WithMetrics(s.metrics))
	s.Require().NoError(err)
}

func (s *QueueSuite) msg(to string) Message {
	return Message{To: to, Subject: "Reminder", HTML: "<p>hi</p>"}
}

// tick advances past the attempt gate before ticking.
func (s *QueueSuite) tick() TickReport {
	s.clock.Advance(DefaultMinInterval)
	return s.queue.Tick(s.ctx)
}

func (s *QueueSuite) TestNewRequiresSender() {
	_, err := New(nil)
	s.Error(err)
}

func (s *QueueSuite) TestCapacity() {
	for i := 0; i < DefaultCapacity; i++ {
		res := s.queue.Enqueue(s.ctx, s.msg(fmt.Sprintf("owner%d@example.com", i)))
		s.Require().True(res.Accepted, "enqueue %d", i)
	}

	res := s.queue.Enqueue(s.ctx, s.msg("late@example.com"))
	s.False(res.Accepted)
	s.ErrorIs(res.Reason, ErrQueueFull)
	s.Equal(DefaultCapacity, s.queue.Status().Pending)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Outcomes.WithLabelValues(string(OutcomeDroppedFull))))
}

func (s *QueueSuite) TestInvalidRecipientRejected() {
	res := s.queue.Enqueue(s.ctx, s.msg("nobody"))
	s.False(res.Accepted)
	s.ErrorIs(res.Reason, ErrInvalidMessage)
	s.Zero(s.queue.Status().Pending)
}

func (s *QueueSuite) TestDelivers() {
	res := s.queue.Enqueue(s.ctx, s.msg("Owner@Example.com"))
	s.Require().True(res.Accepted)

	report := s.tick()
	s.True(report.Attempted)
	s.Equal(OutcomeDelivered, report.Outcome)
	s.Equal(res.JobID, report.JobID)
	s.Require().Len(s.sender.sent, 1)
	s.Equal("owner@example.com", s.sender.sent[0].To)
	s.Zero(s.queue.Status().Pending)
}

func (s *QueueSuite) TestOneAttemptPerTick() {
	s.queue.Enqueue(s.ctx, s.msg("a@example.com"))
	s.queue.Enqueue(s.ctx, s.msg("b@example.com"))

	s.tick()
	s.Equal([]string{"a@example.com"}, s.sender.attemptLog())
	s.Equal(1, s.queue.Status().Pending)
}

func (s *QueueSuite) TestMinIntervalGate() {
	s.queue.Enqueue(s.ctx, s.msg("a@example.com"))
	s.queue.Enqueue(s.ctx, s.msg("b@example.com"))

	s.Equal(OutcomeDelivered, s.queue.Tick(s.ctx).Outcome)
	report := s.queue.Tick(s.ctx)
	s.Equal(OutcomeThrottled, report.Outcome)
	s.False(report.Attempted)

	s.Equal(OutcomeDelivered, s.tick().Outcome)
}

func (s *QueueSuite) TestStaleJobsPurgedWithoutAttempt() {
	s.queue.Enqueue(s.ctx, s.msg("old@example.com"))
	s.clock.Advance(30 * time.Minute)
	s.queue.Enqueue(s.ctx, s.msg("fresh@example.com"))
	s.clock.Advance(30*time.Minute + time.Second)

	report := s.queue.Tick(s.ctx)
	s.Equal(1, report.Evicted)
	s.True(report.Attempted)
	s.Equal([]string{"fresh@example.com"}, s.sender.attemptLog())
}

func (s *QueueSuite) TestStaleEvictionCoversWholeQueue() {
	s.sender.fail["a@example.com"] = true
	s.queue.Enqueue(s.ctx, s.msg("a@example.com"))
	s.tick() // a fails and rotates to the tail
	s.clock.Advance(DefaultTTL)

	report := s.queue.Tick(s.ctx)
	s.Equal(1, report.Evicted)
	s.False(report.Attempted)
	s.Equal(OutcomeStale, report.Outcome)
	s.Len(s.sender.attemptLog(), 1)
	s.Zero(s.queue.Status().Pending)
}

func (s *QueueSuite) TestFailedJobRotatesToTail() {
	s.sender.fail["a@example.com"] = true
	s.queue.Enqueue(s.ctx, s.msg("a@example.com"))
	s.queue.Enqueue(s.ctx, s.msg("b@example.com"))

	s.Equal(OutcomeRetried, s.tick().Outcome)
	s.Equal(OutcomeDelivered, s.tick().Outcome)
	s.Equal([]string{"a@example.com", "b@example.com"}, s.sender.attemptLog())
	s.Equal(1, s.queue.Status().Pending)
}

func (s *QueueSuite) TestRetriesExhausted() {
	s.sender.fail["a@example.com"] = true
	s.queue.Enqueue(s.ctx, s.msg("a@example.com"))

	s.Equal(OutcomeRetried, s.tick().Outcome)
	s.Equal(OutcomeRetried, s.tick().Outcome)
	report := s.tick()
	s.Equal(OutcomeExhausted, report.Outcome)
	s.ErrorIs(report.Err, ErrRetriesExhausted)
	s.Zero(s.queue.Status().Pending)

	s.Equal(OutcomeIdle, s.tick().Outcome)
	s.Len(s.sender.attemptLog(), DefaultMaxRetries)
}

func (s *QueueSuite) TestSenderPanicCountsAsFailedAttempt() {
	q, err := New(s.sender, WithClock(s.clock), WithCapacity(2))
	s.Require().NoError(err)
	s.sender.panics["a@example.com"] = true
	q.Enqueue(s.ctx, s.msg("a@example.com"))
	q.Enqueue(s.ctx, s.msg("b@example.com"))

	s.clock.Advance(DefaultMinInterval)
	report := q.Tick(s.ctx)
	s.Equal(OutcomeRetried, report.Outcome)
	s.ErrorIs(report.Err, ErrSenderPanicked)
	status := q.Status()
	s.False(status.IsProcessing)
	s.Equal(2, status.Pending, "the panicked job rotates to the tail")

	s.clock.Advance(DefaultMinInterval)
	s.Equal(OutcomeDelivered, q.Tick(s.ctx).Outcome)
	for range DefaultMaxRetries - 1 {
		s.clock.Advance(DefaultMinInterval)
		report = q.Tick(s.ctx)
	}
	s.Equal(OutcomeExhausted, report.Outcome)
	s.ErrorIs(report.Err, ErrSenderPanicked)
	s.Zero(q.Status().Pending)

	s.clock.Advance(DefaultTTL + time.Second)
	s.Equal(OutcomeIdle, q.Tick(s.ctx).Outcome)
	s.Zero(q.Status().Pending)
	s.True(q.Enqueue(s.ctx, s.msg("c@example.com")).Accepted)
	s.True(q.Enqueue(s.ctx, s.msg("d@example.com")).Accepted, "no capacity is held by the panicked job")
}

func (s *QueueSuite) TestUnconfiguredTransportDiscards() {
	s.queue.Enqueue(s.ctx, s.msg("a@example.com"))
	s.sender.configured = false

	res := s.queue.Enqueue(s.ctx, s.msg("b@example.com"))
	s.False(res.Accepted)
	s.ErrorIs(res.Reason, ErrTransportUnconfigured)
	s.Zero(s.queue.Status().Pending)

	report := s.tick()
	s.Equal(OutcomeDroppedUnconfigured, report.Outcome)
	s.Empty(s.sender.attemptLog())
}

func (s *QueueSuite) TestOverlappingTickIsSkipped() {
	s.sender.entered = make(chan struct{})
	s.sender.release = make(chan struct{})
	s.queue.Enqueue(s.ctx, s.msg("a@example.com"))
	s.queue.Enqueue(s.ctx, s.msg("b@example.com"))
	s.clock.Advance(DefaultMinInterval)

	done := make(chan TickReport)
	go func() { done <- s.queue.Tick(s.ctx) }()
	<-s.sender.entered

	status := s.queue.Status()
	s.True(status.IsProcessing)
	s.Equal(2, status.Pending)

	s.Equal(OutcomeBusy, s.queue.Tick(s.ctx).Outcome)

	close(s.sender.release)
	s.Equal(OutcomeDelivered, (<-done).Outcome)
	s.False(s.queue.Status().IsProcessing)
	s.Equal([]string{"a@example.com"}, s.sender.attemptLog())
}

func (s *QueueSuite) TestInFlightJobCountsTowardCapacity() {
	q, err := New(s.sender, WithClock(s.clock), WithCapacity(1))
	s.Require().NoError(err)
	s.sender.entered = make(chan struct{})
	s.sender.release = make(chan struct{})

	s.Require().True(q.Enqueue(s.ctx, s.msg("a@example.com")).Accepted)
	done := make(chan struct{})
	go func() { q.Tick(s.ctx); close(done) }()
	<-s.sender.entered

	res := q.Enqueue(s.ctx, s.msg("b@example.com"))
	s.ErrorIs(res.Reason, ErrQueueFull)

	close(s.sender.release)
	<-done
}

func (s *QueueSuite) TestStartDrainsOnTicks() {
	s.Require().NoError(s.queue.Start(s.ctx))
	defer s.queue.Stop()
	s.Require().NoError(s.queue.Start(s.ctx))

	s.queue.Enqueue(s.ctx, s.msg("a@example.com"))
	s.clock.Advance(DefaultTickInterval)

	s.Eventually(func() bool {
		return len(s.sender.attemptLog()) == 1
	}, time.Second, 5*time.Millisecond)

	s.queue.Stop()
	s.Zero(s.clock.Tickers())
}
