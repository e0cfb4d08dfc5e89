package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cash-settlement-service/internal/models"
)

// Notifier delivers a notification to one user.
type Notifier interface {
	Notify(ctx context.Context, userID string, n models.Notification) error
}

type producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Message is the Kafka payload consumed by the push delivery service.
type Message struct {
	UserID       string              `json:"user_id"`
	Notification models.Notification `json:"notification"`
	CreatedAt    time.Time           `json:"created_at"`
}

// KafkaNotifier publishes notifications keyed by user id so one user's
// messages stay on one partition.
type KafkaNotifier struct {
	producer producer
	topic    string
	now      func() time.Time
}

func NewKafkaNotifier(p producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: p, topic: topic, now: time.Now}
}

func (k *KafkaNotifier) Notify(ctx context.Context, userID string, n models.Notification) error {
	value, err := json.Marshal(Message{UserID: userID, Notification: n, CreatedAt: k.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	headers := map[string]string{"type": string(n.Type)}
	return k.producer.ProduceMessage(ctx, k.topic, []byte(userID), value, headers)
}

// NoopNotifier drops everything. Used when Kafka is disabled.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, models.Notification) error { return nil }
