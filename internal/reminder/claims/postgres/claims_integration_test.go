//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"corpdesk/internal/platform/clock"
	"corpdesk/internal/reminder/claims/postgres"
	"corpdesk/pkg/testutil/containers"
)

type PostgresClaimsSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	clock    *clock.Fake
	claims   *postgres.Claims
}

func TestPostgresClaimsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresClaimsSuite))
}

func (s *PostgresClaimsSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *PostgresClaimsSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "reminder_claims"))
	s.clock = clock.NewFake(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	s.claims = postgres.New(s.postgres.DB, s.clock)
}

func (s *PostgresClaimsSuite) TestClaimTakesOverExpiredRow() {
	ctx := context.Background()

	ok, err := s.claims.Claim(ctx, "k", time.Hour)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.claims.Claim(ctx, "k", time.Hour)
	s.Require().NoError(err)
	s.False(ok)

	s.clock.Advance(time.Hour)
	ok, err = s.claims.Claim(ctx, "k", time.Hour)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *PostgresClaimsSuite) TestConcurrentClaimsHaveOneWinner() {
	ctx := context.Background()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.claims.Claim(ctx, "race", time.Hour); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *PostgresClaimsSuite) TestRelease() {
	ctx := context.Background()
	_, _ = s.claims.Claim(ctx, "k", time.Hour)
	s.Require().NoError(s.claims.Release(ctx, "k"))

	ok, err := s.claims.Claim(ctx, "k", time.Hour)
	s.Require().NoError(err)
	s.True(ok)
}
