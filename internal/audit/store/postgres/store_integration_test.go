//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"corpdesk/internal/audit"
	"corpdesk/internal/audit/store/postgres"
	"corpdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_entries"))
}

func (s *PostgresStoreSuite) TestAppendAndListRecent() {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	older := audit.Entry{ID: uuid.New(), Timestamp: base, Action: audit.ActionRateLimitExceeded, TargetID: "login:a"}
	newer := audit.Entry{
		ID:        uuid.New(),
		Timestamp: base.Add(time.Minute),
		Action:    audit.ActionReminderSent,
		ActorID:   "scheduler",
		Details:   map[string]string{"deadline_type": "irs_1120"},
	}
	s.Require().NoError(s.store.Append(ctx, older))
	s.Require().NoError(s.store.Append(ctx, newer))

	got, err := s.store.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(newer.ID, got[0].ID)
	s.Equal("irs_1120", got[0].Details["deadline_type"])
	s.Equal(older.ID, got[1].ID)
}

func (s *PostgresStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	e := audit.Entry{ID: uuid.New(), Timestamp: time.Now().UTC(), Action: audit.ActionReminderSent}

	s.Require().NoError(s.store.Append(ctx, e))
	s.Require().NoError(s.store.Append(ctx, e))

	got, err := s.store.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Len(got, 1)
}
