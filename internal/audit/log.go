package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"corpdesk/internal/platform/clock"
	"corpdesk/internal/platform/logger"
)

// DefaultCapacity bounds the in-memory log.
const DefaultCapacity = 10000

// Log is a bounded, thread-safe, append-only record of security events.
// When full, the oldest entries are evicted to make room for new ones.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	head     int // next write position
	count    int
	capacity int
	dropped  int64

	clock  clock.Clock
	logger *slog.Logger
	mirror chan Entry
}

type Option func(*Log)

func WithClock(c clock.Clock) Option {
	return func(l *Log) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithLogger(lg *slog.Logger) Option {
	return func(l *Log) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithMirror copies every appended entry onto a buffered channel drained by
// a Worker. Entries are not mirrored when the channel is full.
func WithMirror(buffer int) Option {
	return func(l *Log) {
		if buffer > 0 {
			l.mirror = make(chan Entry, buffer)
		}
	}
}

// NewLog creates a log with the given capacity (DefaultCapacity if <= 0).
func NewLog(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{
		entries:  make([]Entry, capacity),
		capacity: capacity,
		clock:    clock.Real{},
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append timestamps the entry and records it, evicting the oldest entry
// once capacity is reached. The stored entry is returned.
func (l *Log) Append(ctx context.Context, e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Timestamp = l.clock.Now()
	e.Details = cloneDetails(e.Details)

	l.mu.Lock()
	if l.count == l.capacity {
		l.dropped++
	} else {
		l.count++
	}
	l.entries[l.head] = e
	l.head = (l.head + 1) % l.capacity
	l.mu.Unlock()

	if l.mirror != nil {
		select {
		case l.mirror <- e:
		default:
			l.logger.WarnContext(ctx, "audit mirror full, entry not persisted", "action", e.Action, "entry_id", e.ID)
		}
	}
	return e
}

// Recent returns up to limit entries, most recent first.
func (l *Log) Recent(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || l.count == 0 {
		return []Entry{}
	}
	if limit > l.count {
		limit = l.count
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.head - i + l.capacity) % l.capacity
		e := l.entries[idx]
		e.Details = cloneDetails(e.Details)
		out = append(out, e)
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Dropped returns how many entries were evicted by capacity.
func (l *Log) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Mirror returns the channel fed by WithMirror, or nil.
func (l *Log) Mirror() <-chan Entry {
	return l.mirror
}

func cloneDetails(d map[string]string) map[string]string {
	if d == nil {
		return nil
	}
	out := make(map[string]string, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
