package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"corpdesk/internal/compliance"
	"corpdesk/pkg/domain"
	"corpdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps entities and deadlines in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	entities  map[domain.EntityID]compliance.Entity
	deadlines map[domain.EntityID][]compliance.Deadline
}

func New() *InMemoryStore {
	return &InMemoryStore{
		entities:  make(map[domain.EntityID]compliance.Entity),
		deadlines: make(map[domain.EntityID][]compliance.Deadline),
	}
}

func (s *InMemoryStore) SaveEntity(_ context.Context, e compliance.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
	return nil
}

// SaveDeadlines replaces the entity's deadlines.
func (s *InMemoryStore) SaveDeadlines(_ context.Context, id domain.EntityID, ds []compliance.Deadline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[id] = append([]compliance.Deadline(nil), ds...)
	return nil
}

func (s *InMemoryStore) ListDeadlines(_ context.Context, id domain.EntityID) ([]compliance.Deadline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entities[id]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]compliance.Deadline{}, s.deadlines[id]...), nil
}

// DueBetween returns deadlines of type t due within [from, to], compared by
// calendar date.
func (s *InMemoryStore) DueBetween(_ context.Context, t compliance.DeadlineType, from, to time.Time) ([]compliance.Candidate, error) {
	from, to = compliance.DateOf(from), compliance.DateOf(to)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []compliance.Candidate
	for id, ds := range s.deadlines {
		entity, ok := s.entities[id]
		if !ok {
			continue
		}
		for _, d := range ds {
			if d.Type != t || d.DueDate.Before(from) || d.DueDate.After(to) {
				continue
			}
			out = append(out, compliance.Candidate{Entity: entity, Deadline: d})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].Deadline.DueDate.Equal(out[b].Deadline.DueDate) {
			return out[a].Deadline.DueDate.Before(out[b].Deadline.DueDate)
		}
		return out[a].Entity.ID.String() < out[b].Entity.ID.String()
	})
	return out, nil
}
