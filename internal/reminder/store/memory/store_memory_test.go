package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpdesk/internal/compliance"
	"corpdesk/internal/reminder"
	"corpdesk/pkg/domain"
	"corpdesk/pkg/platform/sentinel"
)

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := New()
	n := reminder.Notification{ID: domain.NewNotificationID(), EntityID: domain.NewEntityID()}

	require.NoError(t, s.Create(context.Background(), n))
	err := s.Create(context.Background(), n)
	assert.True(t, errors.Is(err, sentinel.ErrConflict))
}

func TestListByEntityNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	entity := domain.NewEntityID()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, typ := range []compliance.DeadlineType{compliance.DeadlineIRS1120, compliance.DeadlineAgentRenewal} {
		require.NoError(t, s.Create(ctx, reminder.Notification{
			ID:           domain.NewNotificationID(),
			EntityID:     entity,
			DeadlineType: typ,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.Create(ctx, reminder.Notification{ID: domain.NewNotificationID(), EntityID: domain.NewEntityID()}))

	got, err := s.ListByEntity(ctx, entity)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, compliance.DeadlineAgentRenewal, got[0].DeadlineType)

	none, err := s.ListByEntity(ctx, domain.NewEntityID())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSentSince(t *testing.T) {
	s := New()
	ctx := context.Background()
	entity := domain.NewEntityID()
	created := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, reminder.Notification{
		ID:           domain.NewNotificationID(),
		EntityID:     entity,
		DeadlineType: compliance.DeadlineIRS1120,
		CreatedAt:    created,
	}))

	tests := []struct {
		name   string
		entity domain.EntityID
		typ    compliance.DeadlineType
		since  time.Time
		want   bool
	}{
		{"newer than since", entity, compliance.DeadlineIRS1120, created.Add(-time.Second), true},
		{"exclusive lower bound", entity, compliance.DeadlineIRS1120, created, false},
		{"older than since", entity, compliance.DeadlineIRS1120, created.Add(time.Second), false},
		{"other type", entity, compliance.DeadlineIRS5472, created.Add(-time.Hour), false},
		{"other entity", domain.NewEntityID(), compliance.DeadlineIRS1120, created.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SentSince(ctx, tt.entity, tt.typ, tt.since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
