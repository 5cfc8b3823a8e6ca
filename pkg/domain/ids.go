// Package domain holds typed identifiers shared across modules. Each ID is a
// distinct named UUID type so the compiler rejects cross-type assignment.
package domain

import (
	"github.com/google/uuid"

	dErrors "corpdesk/pkg/domain-errors"
)

// EntityID identifies a company (formation application) whose deadlines are tracked.
type EntityID uuid.UUID

// NotificationID identifies a persisted notification record.
type NotificationID uuid.UUID

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

// ParseEntityID validates s at a trust boundary.
func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID(s, "entity ID")
	return EntityID(u), err
}

// ParseNotificationID validates s at a trust boundary.
func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID(s, "notification ID")
	return NotificationID(u), err
}

// NewEntityID returns a random entity ID.
func NewEntityID() EntityID { return EntityID(uuid.New()) }

// NewNotificationID returns a random notification ID.
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

func (id EntityID) String() string       { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }

func (id EntityID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id EntityID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id NotificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *EntityID) UnmarshalText(b []byte) error {
	parsed, err := ParseEntityID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *NotificationID) UnmarshalText(b []byte) error {
	parsed, err := ParseNotificationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
