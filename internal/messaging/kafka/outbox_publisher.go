package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

var errPublisherNotReady = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher отправляет сообщения outbox в один topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher. Пустой topic означает TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// outboxEnvelope: сообщение в topic событий заказов.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func (p *OutboxTopicPublisher) envelope(msg domain.OutboxMessage) outboxEnvelope {
	payload := json.RawMessage("null")
	if len(msg.Payload) > 0 {
		payload = msg.Payload
	}
	return outboxEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   p.now(),
	}
}

// Publish отправляет сообщение с ключом msg.PartitionKey(): события одного
// заказа попадают в одну партицию и читаются по порядку.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotReady
	}
	return p.producer.Send(ctx, p.topic, msg.PartitionKey(), p.envelope(msg),
		sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(msg.EventType)},
		sarama.RecordHeader{Key: []byte(HeaderMessageID), Value: []byte(msg.ID)},
	)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
