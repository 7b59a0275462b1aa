package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

var replayNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// relayedNotification хранит тело webhook в base64 вместе с подписью провайдера.
const relayedNotification = `{"payload":"eyJpZCI6ImV2dF8xIiwidHlwZSI6InBheW1lbnRfaW50ZW50LnN1Y2NlZWRlZCJ9","signature":"t=1700000000,v1=abc"}`

func notificationDLQValue(t *testing.T, topic string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"original_topic":     topic,
		"original_partition": 0,
		"original_offset":    42,
		"original_key":       "pi_123",
		"original_value":     relayedNotification,
		"error_message":      "storage unavailable",
		"retry_count":        3,
	})
	require.NoError(t, err)
	return raw
}

func outboxDLQValue(t *testing.T, inner any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":             "outbox-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     string(kafka.EventTypeOrderPaymentReceived),
		"payload":        inner,
		"published_at":   replayNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	return raw
}

func TestDecodeDLQMessage_Notification(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: notificationDLQValue(t, "custom.notifications")}

	got, err := decodeDLQMessage(msg, kafka.TopicOrderEvents, replayNow)
	require.NoError(t, err)
	assert.Equal(t, "custom.notifications", got.topic)
	assert.Equal(t, "pi_123", got.key)
	assert.JSONEq(t, relayedNotification, string(got.value))
	assert.Empty(t, got.eventType)
	assert.Empty(t, got.headers)
}

func TestDecodeDLQMessage_NotificationTopicFallback(t *testing.T) {
	withHeader := &sarama.ConsumerMessage{
		Value: notificationDLQValue(t, ""),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte("from.header")},
		},
	}
	got, err := decodeDLQMessage(withHeader, kafka.TopicOrderEvents, replayNow)
	require.NoError(t, err)
	assert.Equal(t, "from.header", got.topic)

	bare := &sarama.ConsumerMessage{Value: notificationDLQValue(t, "")}
	got, err = decodeDLQMessage(bare, kafka.TopicOrderEvents, replayNow)
	require.NoError(t, err)
	assert.Equal(t, kafka.TopicPaymentNotifications, got.topic)
}

func TestDecodeDLQMessage_OutboxEvent(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: outboxDLQValue(t, map[string]any{
		"outbox_id":      "outbox-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     string(kafka.EventTypeOrderPaymentReceived),
		"payload":        map[string]any{"order_id": "order-1", "status": "payment_received"},
		"publish_error":  "broker timeout",
	})}

	got, err := decodeDLQMessage(msg, "events.replay", replayNow)
	require.NoError(t, err)
	assert.Equal(t, "events.replay", got.topic)
	assert.Equal(t, "order-1", got.key)
	assert.Equal(t, string(kafka.EventTypeOrderPaymentReceived), got.eventType)
	require.Len(t, got.headers, 2)
	assert.Equal(t, kafka.HeaderEventType, string(got.headers[0].Key))
	assert.Equal(t, kafka.HeaderMessageID, string(got.headers[1].Key))
	assert.Equal(t, "outbox-1", string(got.headers[1].Value))

	var event orderEventEnvelope
	require.NoError(t, json.Unmarshal(got.value, &event))
	assert.Equal(t, "outbox-1", event.ID)
	assert.Equal(t, "order", event.AggregateType)
	assert.True(t, replayNow.Equal(event.PublishedAt))
	assert.JSONEq(t, `{"order_id":"order-1","status":"payment_received"}`, string(event.Payload))
}

func TestDecodeDLQMessage_OutboxFallsBackToEnvelopeFields(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: outboxDLQValue(t, map[string]any{
		"payload": map[string]any{"order_id": "order-1"},
	})}

	got, err := decodeDLQMessage(msg, kafka.TopicOrderEvents, replayNow)
	require.NoError(t, err)
	assert.Equal(t, "order-1", got.key)
	assert.Equal(t, string(kafka.EventTypeOrderPaymentReceived), got.eventType)
}

func TestDecodeDLQMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		msg  *sarama.ConsumerMessage
	}{
		{name: "nil message", msg: nil},
		{name: "empty value", msg: &sarama.ConsumerMessage{}},
		{name: "not json", msg: &sarama.ConsumerMessage{Value: []byte("plain text")}},
		{name: "unknown object", msg: &sarama.ConsumerMessage{Value: []byte(`{"foo":1}`)}},
		{name: "nested payload is not an object", msg: &sarama.ConsumerMessage{Value: outboxDLQValue(t, "oops")}},
		{name: "nested payload without event", msg: &sarama.ConsumerMessage{Value: outboxDLQValue(t, map[string]any{"outbox_id": "outbox-1"})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeDLQMessage(tt.msg, kafka.TopicOrderEvents, replayNow)
			assert.Error(t, err)
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	assert.Empty(t, firstNonEmpty("", " "))
}
