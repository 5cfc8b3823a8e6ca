// Package kafka publishes reminder events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"corpdesk/internal/reminder"
)

const eventType = "reminder.issued"

// Producer is the subset of the platform producer the publisher needs.
type Producer interface {
	Produce(ctx context.Context, key, value []byte, headers map[string]string) error
}

type Publisher struct {
	producer Producer
}

func New(p Producer) *Publisher {
	return &Publisher{producer: p}
}

// Publish keys records by entity so one entity's events stay ordered.
func (p *Publisher) Publish(ctx context.Context, e reminder.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal reminder event: %w", err)
	}
	headers := map[string]string{
		"event_type":    eventType,
		"deadline_type": string(e.DeadlineType),
	}
	return p.producer.Produce(ctx, []byte(e.EntityID.String()), payload, headers)
}
