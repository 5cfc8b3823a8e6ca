package compliance

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"corpdesk/internal/audit"
	"corpdesk/internal/platform/logger"
	dErrors "corpdesk/pkg/domain-errors"
	"corpdesk/pkg/domain"
	"corpdesk/pkg/email"
	"corpdesk/pkg/platform/sentinel"
	"corpdesk/pkg/requestcontext"
)

// DeadlineWriter persists entities and their computed deadlines.
type DeadlineWriter interface {
	SaveEntity(ctx context.Context, e Entity) error
	SaveDeadlines(ctx context.Context, entityID domain.EntityID, deadlines []Deadline) error
}

// DeadlineLister reads back the deadlines stored for one entity.
type DeadlineLister interface {
	ListDeadlines(ctx context.Context, entityID domain.EntityID) ([]Deadline, error)
}

// TxRunner scopes SaveEntity and SaveDeadlines to one transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type AuditLog interface {
	Append(ctx context.Context, e audit.Entry) audit.Entry
}

// Service recomputes and stores deadlines whenever an entity's formation
// data changes.
type Service struct {
	writer   DeadlineWriter
	lister   DeadlineLister
	tx       TxRunner
	auditLog AuditLog
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithAuditLog(a AuditLog) Option {
	return func(s *Service) {
		s.auditLog = a
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

// WithLister enables Deadlines.
func WithLister(l DeadlineLister) Option {
	return func(s *Service) {
		s.lister = l
	}
}

func NewService(writer DeadlineWriter, opts ...Option) (*Service, error) {
	if writer == nil {
		return nil, errors.New("deadline writer is required")
	}
	s := &Service{
		writer: writer,
		tx:     noTx{},
		logger: logger.Discard(),
		tracer: otel.Tracer("corpdesk/compliance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Recompute validates the entity, stores it, and replaces its deadlines with
// a fresh ComputeDeadlines result.
func (s *Service) Recompute(ctx context.Context, e Entity) ([]Deadline, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.recompute",
		trace.WithAttributes(attribute.String("entity.id", e.ID.String())))
	defer span.End()

	e, err := normalizeEntity(e)
	if err != nil {
		return nil, err
	}

	deadlines := ComputeDeadlines(e.FormationDate, string(e.Jurisdiction))

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.writer.SaveEntity(txCtx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "save entity")
		}
		if err := s.writer.SaveDeadlines(txCtx, e.ID, deadlines); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "save deadlines")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("deadlines.count", len(deadlines)))

	s.logger.InfoContext(ctx, "compliance deadlines recomputed",
		"entity_id", e.ID.String(),
		"jurisdiction", string(e.Jurisdiction),
		"count", len(deadlines),
	)
	if s.auditLog != nil {
		s.auditLog.Append(ctx, audit.Entry{
			Action:   audit.ActionDeadlinesComputed,
			ActorID:  requestcontext.ActorID(ctx),
			TargetID: e.ID.String(),
			Details: map[string]string{
				"jurisdiction":   string(e.Jurisdiction),
				"formation_date": e.FormationDate.Format(DateLayout),
			},
		})
	}
	return deadlines, nil
}

// Deadlines returns the stored deadlines for an entity.
func (s *Service) Deadlines(ctx context.Context, id domain.EntityID) ([]Deadline, error) {
	if s.lister == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "deadline listing is not configured")
	}
	ds, err := s.lister.ListDeadlines(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "entity not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list deadlines")
	}
	return ds, nil
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

func normalizeEntity(e Entity) (Entity, error) {
	if e.ID.IsNil() {
		return e, dErrors.New(dErrors.CodeInvalidInput, "entity ID is required")
	}
	if e.FormationDate.IsZero() {
		return e, dErrors.New(dErrors.CodeInvalidInput, "formation date is required")
	}
	e.Jurisdiction = NormalizeJurisdiction(string(e.Jurisdiction))
	if e.Jurisdiction == "" {
		return e, dErrors.New(dErrors.CodeInvalidInput, "jurisdiction is required")
	}
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return e, dErrors.New(dErrors.CodeInvalidInput, "entity name is required")
	}
	owner, err := email.NormalizeAddress(e.OwnerEmail)
	if err != nil {
		return e, dErrors.Wrap(err, dErrors.CodeInvalidInput, "owner email is invalid")
	}
	e.OwnerEmail = owner
	e.OwnerName = strings.TrimSpace(e.OwnerName)
	e.FormationDate = DateOf(e.FormationDate)
	return e, nil
}
