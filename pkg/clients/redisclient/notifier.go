package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SlotsUpdatedChannel is the pub/sub channel announcing written assignments
const SlotsUpdatedChannel = "planner.slots.updated"

// SlotsUpdatedEvent is published after a run writes assignments for a week
type SlotsUpdatedEvent struct {
	Week        string    `json:"week"`
	Dates       []string  `json:"dates"`
	Updates     int       `json:"updates"`
	PublishedAt time.Time `json:"published_at"`
}

// Notifier publishes slot update events
type Notifier struct {
	client  *Client
	channel string
	now     func() time.Time
}

func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client, channel: SlotsUpdatedChannel, now: time.Now}
}

// SlotsUpdated publishes a SlotsUpdatedEvent
func (n *Notifier) SlotsUpdated(ctx context.Context, week string, dates []string, updates int) error {
	data, err := encodeEvent(SlotsUpdatedEvent{
		Week:        week,
		Dates:       dates,
		Updates:     updates,
		PublishedAt: n.now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := n.client.Client().Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func encodeEvent(event SlotsUpdatedEvent) ([]byte, error) {
	if event.Dates == nil {
		event.Dates = []string{}
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}
