package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpdesk/internal/compliance"
	"corpdesk/internal/reminder"
	"corpdesk/pkg/domain"
)

type recordingProducer struct {
	key, value []byte
	headers    map[string]string
	err        error
}

func (r *recordingProducer) Produce(_ context.Context, key, value []byte, headers map[string]string) error {
	r.key, r.value, r.headers = key, value, headers
	return r.err
}

func TestPublish(t *testing.T) {
	rec := &recordingProducer{}
	evt := reminder.Event{
		NotificationID: domain.NewNotificationID(),
		EntityID:       domain.NewEntityID(),
		DeadlineType:   compliance.DeadlineAnnualReport,
		DueDate:        "2025-06-15",
		EmailQueued:    true,
	}

	require.NoError(t, New(rec).Publish(context.Background(), evt))
	assert.Equal(t, evt.EntityID.String(), string(rec.key))
	assert.Equal(t, "reminder.issued", rec.headers["event_type"])
	assert.Equal(t, "annual_report", rec.headers["deadline_type"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.value, &decoded))
	assert.Equal(t, "2025-06-15", decoded["due_date"])
	assert.Equal(t, true, decoded["email_queued"])
}

func TestPublishPropagatesProducerError(t *testing.T) {
	rec := &recordingProducer{err: errors.New("broker down")}
	err := New(rec).Publish(context.Background(), reminder.Event{EntityID: domain.NewEntityID()})
	assert.Error(t, err)
}
