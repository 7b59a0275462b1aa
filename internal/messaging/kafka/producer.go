package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// NewSyncProducerConfig возвращает настройки синхронного idempotent producer:
// запись подтверждают все in-sync реплики.
func NewSyncProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// Producer отправляет JSON-сообщения в Kafka.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	sync, err := sarama.NewSyncProducer(brokers, NewSyncProducerConfig("checkout-service"))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFromSync(sync, logger), nil
}

// NewProducerFromSync оборачивает готовый SyncProducer, в тестах это sarama/mocks.
func NewProducerFromSync(sync sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{
		sync:   sync,
		logger: logger,
		now:    time.Now,
	}
}

// Send сериализует value в JSON и ждёт подтверждения брокера.
// SyncProducer не принимает context, поэтому отмена проверяется только до отправки.
func (p *Producer) Send(ctx context.Context, topic, key string, value any, headers ...sarama.RecordHeader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}

	logger := p.logger.WithFields(log.Fields{"topic": topic, "key": key})
	partition, offset, err := p.sync.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(body),
		Headers:   headers,
		Timestamp: p.now(),
	})
	if err != nil {
		logger.WithError(err).Warn("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	logger.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message sent")
	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
