package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"corpdesk/internal/compliance"
	"corpdesk/pkg/domain"
	"corpdesk/pkg/platform/sentinel"
	txcontext "corpdesk/pkg/platform/tx"
)

// Store persists entities and deadlines in Postgres.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) SaveEntity(ctx context.Context, e compliance.Entity) error {
	query := `
		INSERT INTO entities (id, name, owner_email, owner_name, jurisdiction, formation_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner_email = EXCLUDED.owner_email,
			owner_name = EXCLUDED.owner_name,
			jurisdiction = EXCLUDED.jurisdiction,
			formation_date = EXCLUDED.formation_date
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(e.ID),
		e.Name,
		e.OwnerEmail,
		e.OwnerName,
		string(e.Jurisdiction),
		e.FormationDate,
	)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// SaveDeadlines upserts ds and deletes the entity's deadlines whose type is
// no longer present (a jurisdiction change can drop the annual report).
func (s *Store) SaveDeadlines(ctx context.Context, id domain.EntityID, ds []compliance.Deadline) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := s.execer(ctx)
		types := make([]string, 0, len(ds))
		for _, d := range ds {
			types = append(types, string(d.Type))
		}
		_, err := exec.ExecContext(ctx, `
			DELETE FROM compliance_deadlines
			WHERE entity_id = $1 AND NOT (deadline_type = ANY($2))
		`, uuid.UUID(id), pq.Array(types))
		if err != nil {
			return fmt.Errorf("prune deadlines: %w", err)
		}

		for _, d := range ds {
			_, err := exec.ExecContext(ctx, `
				INSERT INTO compliance_deadlines (entity_id, deadline_type, due_date, reminder_date, jurisdiction, description)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (entity_id, deadline_type) DO UPDATE SET
					due_date = EXCLUDED.due_date,
					reminder_date = EXCLUDED.reminder_date,
					jurisdiction = EXCLUDED.jurisdiction,
					description = EXCLUDED.description
			`, uuid.UUID(id), string(d.Type), d.DueDate, d.ReminderDate, string(d.Jurisdiction), d.Description)
			if err != nil {
				return fmt.Errorf("upsert deadline %s: %w", d.Type, err)
			}
		}
		return nil
	})
}

func (s *Store) ListDeadlines(ctx context.Context, id domain.EntityID) ([]compliance.Deadline, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`, uuid.UUID(id)).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check entity: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}

	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT deadline_type, due_date, reminder_date, jurisdiction, description
		FROM compliance_deadlines
		WHERE entity_id = $1
		ORDER BY due_date, deadline_type
	`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("query deadlines: %w", err)
	}
	defer rows.Close()

	ds := []compliance.Deadline{}
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, err
		}
		ds = append(ds, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deadlines: %w", err)
	}
	compliance.SortDeadlines(ds)
	return ds, nil
}

// DueBetween joins deadlines of type t due in [from, to] with their entity.
func (s *Store) DueBetween(ctx context.Context, t compliance.DeadlineType, from, to time.Time) ([]compliance.Candidate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT e.id, e.name, e.owner_email, e.owner_name, e.jurisdiction, e.formation_date,
		       d.deadline_type, d.due_date, d.reminder_date, d.jurisdiction, d.description
		FROM compliance_deadlines d
		JOIN entities e ON e.id = d.entity_id
		WHERE d.deadline_type = $1 AND d.due_date BETWEEN $2 AND $3
		ORDER BY d.due_date, e.id
	`, string(t), compliance.DateOf(from), compliance.DateOf(to))
	if err != nil {
		return nil, fmt.Errorf("query due deadlines: %w", err)
	}
	defer rows.Close()

	var out []compliance.Candidate
	for rows.Next() {
		var (
			c            compliance.Candidate
			id           uuid.UUID
			entityJur    string
			deadlineType string
			deadlineJur  string
		)
		if err := rows.Scan(&id, &c.Entity.Name, &c.Entity.OwnerEmail, &c.Entity.OwnerName, &entityJur,
			&c.Entity.FormationDate, &deadlineType, &c.Deadline.DueDate, &c.Deadline.ReminderDate,
			&deadlineJur, &c.Deadline.Description); err != nil {
			return nil, fmt.Errorf("scan due deadline: %w", err)
		}
		c.Entity.ID = domain.EntityID(id)
		c.Entity.Jurisdiction = compliance.Jurisdiction(entityJur)
		c.Entity.FormationDate = compliance.DateOf(c.Entity.FormationDate)
		c.Deadline.Type = compliance.DeadlineType(deadlineType)
		c.Deadline.Jurisdiction = compliance.Jurisdiction(deadlineJur)
		c.Deadline.DueDate = compliance.DateOf(c.Deadline.DueDate)
		c.Deadline.ReminderDate = compliance.DateOf(c.Deadline.ReminderDate)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due deadlines: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeadline(row scanner) (compliance.Deadline, error) {
	var (
		d   compliance.Deadline
		typ string
		jur string
	)
	if err := row.Scan(&typ, &d.DueDate, &d.ReminderDate, &jur, &d.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, sentinel.ErrNotFound
		}
		return d, fmt.Errorf("scan deadline: %w", err)
	}
	d.Type = compliance.DeadlineType(typ)
	d.Jurisdiction = compliance.Jurisdiction(jur)
	d.DueDate = compliance.DateOf(d.DueDate)
	d.ReminderDate = compliance.DateOf(d.ReminderDate)
	return d, nil
}
