package email

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Best-effort outcomes. None of these are raised to callers; they appear in
// EnqueueResult.Reason or TickReport.Err.
var (
	ErrQueueFull             = errors.New("email queue is full")
	ErrTransportUnconfigured = errors.New("email transport is not configured")
	ErrStale                 = errors.New("email job exceeded its time to live")
	ErrRetriesExhausted      = errors.New("email delivery retries exhausted")
	ErrInvalidMessage        = errors.New("invalid email message")
	ErrSenderPanicked        = errors.New("email sender panicked")
)

// Message is an outbound HTML email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// Sender delivers one message. Configured reports whether credentials are
// present; an unconfigured sender turns the queue into a no-op.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Configured() bool
}

// Job is a queued delivery. It is owned by the queue until removed.
type Job struct {
	ID         uuid.UUID
	Message    Message
	RetryCount int
	MaxRetries int
	EnqueuedAt time.Time
}

// EnqueueResult reports whether a message was accepted. Callers may ignore it.
type EnqueueResult struct {
	JobID    uuid.UUID
	Accepted bool
	Reason   error
}

// Status is a snapshot of the queue.
type Status struct {
	Pending      int  `json:"pending"`
	IsProcessing bool `json:"is_processing"`
}

// Outcome names what a tick did.
type Outcome string

const (
	OutcomeDelivered           Outcome = "delivered"
	OutcomeRetried             Outcome = "retried"
	OutcomeExhausted           Outcome = "exhausted"
	OutcomeStale               Outcome = "stale"
	OutcomeDroppedFull         Outcome = "dropped_full"
	OutcomeDroppedUnconfigured Outcome = "dropped_unconfigured"
	OutcomeIdle                Outcome = "idle"
	OutcomeThrottled           Outcome = "throttled"
	OutcomeBusy                Outcome = "busy"
)

// TickReport describes a single tick. Attempted is true when the transport
// was called.
type TickReport struct {
	Evicted   int
	Attempted bool
	JobID     uuid.UUID
	Outcome   Outcome
	Err       error
}
