package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"corpdesk/internal/platform/clock"
)

// Claims keeps dedup claims in reminder_claims. An expired row is taken over
// by the upsert, so one statement decides the claim.
type Claims struct {
	db    *sql.DB
	clock clock.Clock
}

func New(db *sql.DB, c clock.Clock) *Claims {
	if c == nil {
		c = clock.Real{}
	}
	return &Claims{db: db, clock: c}
}

func (c *Claims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := c.clock.Now()
	var got string
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO reminder_claims (key, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE reminder_claims.expires_at <= $3
		RETURNING key
	`, key, now.Add(ttl), now).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return true, nil
}

func (c *Claims) Release(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM reminder_claims WHERE key = $1`, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
