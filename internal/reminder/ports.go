package reminder

import (
	"context"
	"time"

	"corpdesk/internal/audit"
	"corpdesk/internal/compliance"
	"corpdesk/internal/email"
	"corpdesk/pkg/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks DeadlineReader,NotificationStore,Claims,Mailer,EventPublisher

// DeadlineReader finds stored deadlines of one type due within [from, to].
type DeadlineReader interface {
	DueBetween(ctx context.Context, t compliance.DeadlineType, from, to time.Time) ([]compliance.Candidate, error)
}

// NotificationStore persists issued reminders. SentSince reports whether a
// notification for (entity, type) was created after since.
type NotificationStore interface {
	Create(ctx context.Context, n Notification) error
	SentSince(ctx context.Context, entityID domain.EntityID, t compliance.DeadlineType, since time.Time) (bool, error)
}

// Claims is an atomic check-and-set over dedup keys. Claim returns false
// when an unexpired claim for key already exists.
type Claims interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Mailer interface {
	Enqueue(ctx context.Context, msg email.Message) email.EnqueueResult
}

type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

type AuditLog interface {
	Append(ctx context.Context, e audit.Entry) audit.Entry
}
