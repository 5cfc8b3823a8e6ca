//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"corpdesk/internal/compliance"
	"corpdesk/internal/compliance/store/postgres"
	"corpdesk/pkg/domain"
	"corpdesk/pkg/platform/sentinel"
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
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "entities", "compliance_deadlines"))
}

func (s *PostgresStoreSuite) save(jurisdiction compliance.Jurisdiction, formed time.Time) compliance.Entity {
	ctx := context.Background()
	e := compliance.Entity{
		ID:            domain.NewEntityID(),
		Name:          "Acme LLC",
		OwnerEmail:    "owner@example.com",
		Jurisdiction:  jurisdiction,
		FormationDate: formed,
	}
	s.Require().NoError(s.store.SaveEntity(ctx, e))
	s.Require().NoError(s.store.SaveDeadlines(ctx, e.ID, compliance.ComputeDeadlines(formed, string(jurisdiction))))
	return e
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	formed := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	e := s.save(compliance.Wyoming, formed)

	got, err := s.store.ListDeadlines(context.Background(), e.ID)
	s.Require().NoError(err)
	s.Equal(compliance.ComputeDeadlines(formed, "Wyoming"), got)
}

func (s *PostgresStoreSuite) TestSaveDeadlinesPrunesDroppedTypes() {
	ctx := context.Background()
	formed := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	e := s.save(compliance.Wyoming, formed)

	s.Require().NoError(s.store.SaveDeadlines(ctx, e.ID, compliance.ComputeDeadlines(formed, "New Mexico")))

	got, err := s.store.ListDeadlines(ctx, e.ID)
	s.Require().NoError(err)
	s.Len(got, 3)
}

func (s *PostgresStoreSuite) TestDueBetween() {
	ctx := context.Background()
	inside := s.save(compliance.Delaware, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
	s.save(compliance.Delaware, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))

	got, err := s.store.DueBetween(ctx, compliance.DeadlineAnnualReport,
		time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(inside.ID, got[0].Entity.ID)
	s.Equal(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), got[0].Deadline.DueDate)
	s.Equal(compliance.Delaware, got[0].Deadline.Jurisdiction)
}

func (s *PostgresStoreSuite) TestListDeadlinesUnknownEntity() {
	_, err := s.store.ListDeadlines(context.Background(), domain.NewEntityID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
