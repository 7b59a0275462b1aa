package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

type replayMessage struct {
	topic     string
	key       string
	value     []byte
	eventType string
	headers   []sarama.RecordHeader
}

// consumerDLQPayload пишет kafka.Consumer, когда уведомление провайдера не удалось обработать.
type consumerDLQPayload struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// outboxDLQEnvelope пишет outbox.Worker: стандартный конверт события,
// внутри которого лежит исходное событие и ошибка публикации.
type outboxDLQEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

type outboxDLQPayload struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type orderEventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

var errUnknownDLQFormat = errors.New("unknown dlq message format")

// decodeDLQMessage восстанавливает исходное сообщение из записи DLQ.
// Уведомления уходят обратно в свой топик, события outbox публикуются в eventsTopic.
func decodeDLQMessage(msg *sarama.ConsumerMessage, eventsTopic string, now time.Time) (replayMessage, error) {
	if msg == nil || len(msg.Value) == 0 {
		return replayMessage{}, errUnknownDLQFormat
	}

	var consumerPayload consumerDLQPayload
	if err := json.Unmarshal(msg.Value, &consumerPayload); err != nil {
		return replayMessage{}, fmt.Errorf("%w: %v", errUnknownDLQFormat, err)
	}
	if consumerPayload.OriginalValue != "" {
		topic := firstNonEmpty(consumerPayload.OriginalTopic, headerValue(msg, kafka.HeaderOriginalTopic), kafka.TopicPaymentNotifications)
		return replayMessage{
			topic: strings.TrimSpace(topic),
			key:   consumerPayload.OriginalKey,
			value: []byte(consumerPayload.OriginalValue),
		}, nil
	}

	var envelope outboxDLQEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, errUnknownDLQFormat
	}
	var inner outboxDLQPayload
	if err := json.Unmarshal(envelope.Payload, &inner); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(inner.Payload) == 0 {
		return replayMessage{}, errors.New("outbox dlq payload does not contain original event payload")
	}

	event := orderEventEnvelope{
		ID:            firstNonEmpty(inner.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(inner.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(inner.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(inner.EventType, envelope.EventType),
		Payload:       inner.Payload,
		PublishedAt:   now,
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode order event: %w", err)
	}

	return replayMessage{
		topic:     eventsTopic,
		key:       firstNonEmpty(event.AggregateID, event.ID),
		value:     encoded,
		eventType: event.EventType,
		headers: []sarama.RecordHeader{
			{Key: []byte(kafka.HeaderEventType), Value: []byte(event.EventType)},
			{Key: []byte(kafka.HeaderMessageID), Value: []byte(event.ID)},
		},
	}, nil
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
