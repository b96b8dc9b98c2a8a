// Package pubsub publishes probe alerts to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
)

// Alert is the JSON body of every published message.
type Alert struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// Notifier wraps a Pub/Sub topic.
type Notifier struct {
	topic *pubsub.Topic
	now   func() time.Time
}

// New creates a Notifier for the provided topic.
func New(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic, now: func() time.Time { return time.Now().UTC() }}
}

// Notify publishes message and waits for the server acknowledgement.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	if n.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(Alert{Message: message, SentAt: n.now()})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": "alert"},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (n *Notifier) Stop() {
	if n.topic != nil {
		n.topic.Stop()
	}
}
