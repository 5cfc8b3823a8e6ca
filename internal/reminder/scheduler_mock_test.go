package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"corpdesk/internal/compliance"
	"corpdesk/internal/email"
	"corpdesk/internal/platform/clock"
	"corpdesk/internal/reminder"
	"corpdesk/internal/reminder/mocks"
	dErrors "corpdesk/pkg/domain-errors"
	"corpdesk/pkg/domain"
)

// Failure isolation: one bad candidate or one failing query must not stop
// the rest of the scan.

type SchedulerFailureSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	deadlines     *mocks.MockDeadlineReader
	notifications *mocks.MockNotificationStore
	claims        *mocks.MockClaims
	mailer        *mocks.MockMailer
	publisher     *mocks.MockEventPublisher
	scheduler     *reminder.Scheduler
}

func TestSchedulerFailureSuite(t *testing.T) {
	suite.Run(t, new(SchedulerFailureSuite))
}

func (s *SchedulerFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.deadlines = mocks.NewMockDeadlineReader(s.ctrl)
	s.notifications = mocks.NewMockNotificationStore(s.ctrl)
	s.claims = mocks.NewMockClaims(s.ctrl)
	s.mailer = mocks.NewMockMailer(s.ctrl)
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)

	var err error
	s.scheduler, err = reminder.New(s.deadlines, s.notifications, s.claims, s.mailer,
		reminder.WithClock(clock.NewFake(today)),
		reminder.WithPublisher(s.publisher),
	)
	s.Require().NoError(err)
}

func (s *SchedulerFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

func candidate(name string, t compliance.DeadlineType) compliance.Candidate {
	due := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	return compliance.Candidate{
		Entity: compliance.Entity{
			ID:         domain.NewEntityID(),
			Name:       name,
			OwnerEmail: "owner@example.com",
		},
		Deadline: compliance.Deadline{Type: t, DueDate: due, ReminderDate: compliance.ReminderDate(due)},
	}
}

func (s *SchedulerFailureSuite) expectEmptyExcept(t compliance.DeadlineType) {
	for _, other := range compliance.AllDeadlineTypes {
		if other == t {
			continue
		}
		s.deadlines.EXPECT().DueBetween(gomock.Any(), other, gomock.Any(), gomock.Any()).Return(nil, nil)
	}
}

func (s *SchedulerFailureSuite) TestNotificationFailureReleasesClaimAndContinues() {
	bad := candidate("Bad LLC", compliance.DeadlineIRS1120)
	good := candidate("Good LLC", compliance.DeadlineIRS1120)
	badKey := reminder.DedupKey(bad.Entity.ID, bad.Deadline.Type, bad.Deadline.DueDate)
	goodKey := reminder.DedupKey(good.Entity.ID, good.Deadline.Type, good.Deadline.DueDate)

	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineIRS1120, gomock.Any(), gomock.Any()).
		Return([]compliance.Candidate{bad, good}, nil)
	s.expectEmptyExcept(compliance.DeadlineIRS1120)

	gomock.InOrder(
		s.claims.EXPECT().Claim(gomock.Any(), badKey, reminder.DefaultDedupWindow).Return(true, nil),
		s.notifications.EXPECT().SentSince(gomock.Any(), bad.Entity.ID, bad.Deadline.Type, gomock.Any()).Return(false, nil),
		s.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("insert failed")),
		s.claims.EXPECT().Release(gomock.Any(), badKey).Return(nil),
		s.claims.EXPECT().Claim(gomock.Any(), goodKey, reminder.DefaultDedupWindow).Return(true, nil),
		s.notifications.EXPECT().SentSince(gomock.Any(), good.Entity.ID, good.Deadline.Type, gomock.Any()).Return(false, nil),
		s.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
		s.mailer.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(email.EnqueueResult{Accepted: true}),
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")),
	)

	report, err := s.scheduler.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(2, report.Candidates)
	s.Equal(1, report.Notified)
	s.Equal(1, report.Failed)
	s.Len(report.Errors, 1)
}

func (s *SchedulerFailureSuite) TestClaimErrorCountsAsFailure() {
	c := candidate("Acme LLC", compliance.DeadlineAgentRenewal)
	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineAgentRenewal, gomock.Any(), gomock.Any()).
		Return([]compliance.Candidate{c}, nil)
	s.expectEmptyExcept(compliance.DeadlineAgentRenewal)
	s.claims.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))

	report, err := s.scheduler.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Failed)
}

func (s *SchedulerFailureSuite) TestQueryFailureScansRemainingTypes() {
	c := candidate("Acme LLC", compliance.DeadlineAgentRenewal)
	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineIRS1120, gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection refused"))
	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineIRS5472, gomock.Any(), gomock.Any()).
		Return(nil, nil)
	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineAnnualReport, gomock.Any(), gomock.Any()).
		Return(nil, nil)
	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineAgentRenewal, gomock.Any(), gomock.Any()).
		Return([]compliance.Candidate{c}, nil)
	s.claims.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	s.notifications.EXPECT().SentSince(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	s.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.mailer.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(email.EnqueueResult{Accepted: true})
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	report, err := s.scheduler.RunOnce(context.Background())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(1, report.Notified)
	s.Len(report.Errors, 1)
}

func (s *SchedulerFailureSuite) TestPanicIsContainedToCandidate() {
	bad := candidate("Bad LLC", compliance.DeadlineIRS5472)
	good := candidate("Good LLC", compliance.DeadlineIRS5472)
	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineIRS5472, gomock.Any(), gomock.Any()).
		Return([]compliance.Candidate{bad, good}, nil)
	s.expectEmptyExcept(compliance.DeadlineIRS5472)

	s.claims.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	s.notifications.EXPECT().SentSince(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).Times(2)
	s.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n reminder.Notification) error {
			if n.EntityID == bad.Entity.ID {
				panic("nil pointer in store")
			}
			return nil
		}).Times(2)
	s.claims.EXPECT().Release(gomock.Any(), reminder.DedupKey(bad.Entity.ID, bad.Deadline.Type, bad.Deadline.DueDate)).Return(nil)
	s.mailer.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(email.EnqueueResult{Accepted: true})
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	report, err := s.scheduler.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Failed)
	s.Equal(1, report.Notified)
}

func (s *SchedulerFailureSuite) TestRecordedNotificationSkipsWithoutSending() {
	c := candidate("Acme LLC", compliance.DeadlineAnnualReport)
	key := reminder.DedupKey(c.Entity.ID, c.Deadline.Type, c.Deadline.DueDate)
	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineAnnualReport, gomock.Any(), gomock.Any()).
		Return([]compliance.Candidate{c}, nil)
	s.expectEmptyExcept(compliance.DeadlineAnnualReport)

	gomock.InOrder(
		s.claims.EXPECT().Claim(gomock.Any(), key, reminder.DefaultDedupWindow).Return(true, nil),
		s.notifications.EXPECT().
			SentSince(gomock.Any(), c.Entity.ID, compliance.DeadlineAnnualReport, today.Add(-reminder.DefaultDedupWindow)).
			Return(true, nil),
	)

	report, err := s.scheduler.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Skipped)
	s.Zero(report.Notified)
}

func (s *SchedulerFailureSuite) TestRecentLookupErrorReleasesClaim() {
	c := candidate("Acme LLC", compliance.DeadlineAnnualReport)
	key := reminder.DedupKey(c.Entity.ID, c.Deadline.Type, c.Deadline.DueDate)
	s.deadlines.EXPECT().
		DueBetween(gomock.Any(), compliance.DeadlineAnnualReport, gomock.Any(), gomock.Any()).
		Return([]compliance.Candidate{c}, nil)
	s.expectEmptyExcept(compliance.DeadlineAnnualReport)

	gomock.InOrder(
		s.claims.EXPECT().Claim(gomock.Any(), key, reminder.DefaultDedupWindow).Return(true, nil),
		s.notifications.EXPECT().SentSince(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(false, errors.New("connection reset")),
		s.claims.EXPECT().Release(gomock.Any(), key).Return(nil),
	)

	report, err := s.scheduler.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Failed)
}
