package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"corpdesk/internal/compliance"
	"corpdesk/internal/reminder"
	"corpdesk/pkg/domain"
	"corpdesk/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu            sync.RWMutex
	notifications map[domain.NotificationID]reminder.Notification
}

func New() *InMemoryStore {
	return &InMemoryStore{notifications: make(map[domain.NotificationID]reminder.Notification)}
}

func (s *InMemoryStore) Create(_ context.Context, n reminder.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.notifications[n.ID]; exists {
		return sentinel.ErrConflict
	}
	s.notifications[n.ID] = n
	return nil
}

func (s *InMemoryStore) SentSince(_ context.Context, id domain.EntityID, t compliance.DeadlineType, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if n.EntityID == id && n.DeadlineType == t && n.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// ListByEntity returns the entity's notifications, newest first.
func (s *InMemoryStore) ListByEntity(_ context.Context, id domain.EntityID) ([]reminder.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []reminder.Notification{}
	for _, n := range s.notifications {
		if n.EntityID == id {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}
