package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/knowledge-share/backend/internal/models"
)

// Publisher delivers article lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, evt models.ArticleEvent) error
	Close() error
}

// NewArticleEvent builds an event for a. For deletions pass the id only.
func NewArticleEvent(typ models.EventType, articleID string, a *models.Article) models.ArticleEvent {
	return models.ArticleEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		ArticleID:  articleID,
		Article:    a,
		OccurredAt: time.Now().UTC(),
	}
}

// Kafka publishes events as JSON keyed by article id.
type Kafka struct {
	w *kafka.Writer
}

// NewKafka creates a publisher writing to topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, evt models.ArticleEvent) error {
	msg, err := Message(evt)
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write article event: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (k *Kafka) Close() error {
	return k.w.Close()
}

// Message encodes evt as a kafka message.
func Message(evt models.ArticleEvent) (kafka.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal article event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(evt.ArticleID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
		Time: evt.OccurredAt,
	}, nil
}

// Decode parses a message produced by Message.
func Decode(msg kafka.Message) (models.ArticleEvent, error) {
	var evt models.ArticleEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return evt, fmt.Errorf("decode article event: %w", err)
	}
	return evt, nil
}

// Noop discards events. It is used when no brokers are configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, models.ArticleEvent) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
