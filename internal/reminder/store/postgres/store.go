package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"corpdesk/internal/compliance"
	"corpdesk/internal/reminder"
	"corpdesk/pkg/domain"
	"corpdesk/pkg/platform/sentinel"
	txcontext "corpdesk/pkg/platform/tx"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Create(ctx context.Context, n reminder.Notification) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO notifications (id, entity_id, deadline_type, due_date, recipient, subject, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(n.ID), uuid.UUID(n.EntityID), string(n.DeadlineType), n.DueDate, n.Recipient, n.Subject, n.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("notification %s: %w", n.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) SentSince(ctx context.Context, id domain.EntityID, t compliance.DeadlineType, since time.Time) (bool, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE entity_id = $1 AND deadline_type = $2 AND created_at > $3
		)
	`, uuid.UUID(id), string(t), since)
	if err != nil {
		return false, fmt.Errorf("query recent notification: %w", err)
	}
	defer rows.Close()

	var exists bool
	if rows.Next() {
		if err := rows.Scan(&exists); err != nil {
			return false, fmt.Errorf("scan recent notification: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("query recent notification: %w", err)
	}
	return exists, nil
}

func (s *Store) ListByEntity(ctx context.Context, id domain.EntityID) ([]reminder.Notification, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, entity_id, deadline_type, due_date, recipient, subject, created_at
		FROM notifications
		WHERE entity_id = $1
		ORDER BY created_at DESC
	`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []reminder.Notification{}
	for rows.Next() {
		var (
			n        reminder.Notification
			nid, eid uuid.UUID
			typ      string
		)
		if err := rows.Scan(&nid, &eid, &typ, &n.DueDate, &n.Recipient, &n.Subject, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ID = domain.NotificationID(nid)
		n.EntityID = domain.EntityID(eid)
		n.DeadlineType = compliance.DeadlineType(typ)
		n.DueDate = compliance.DateOf(n.DueDate)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
