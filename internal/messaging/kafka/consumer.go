package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// permanentError помечает ошибку, которую бессмысленно повторять.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неповторяемую: сообщение сразу уходит в DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка через Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Consumer читает topics в consumer group и повторяет обработку упавших сообщений.
// Заголовок x-retry-count уменьшает число оставшихся попыток при повторной доставке.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	deadLetter *Producer
	dlqTopic   string
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
	wg         sync.WaitGroup
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter включает отправку необработанных сообщений в topic через producer.
func WithDeadLetter(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.deadLetter = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// WithMaxRetries задаёт общее число попыток обработки.
func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryDelay задаёт паузу между попытками.
func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.retryDelay = max(d, 0)
	}
}

// WithConsumerLogger задаёт логгер.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumerGroupConfig возвращает настройки consumer group: round-robin и чтение с новых сообщений.
func NewConsumerGroupConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	return config
}

// NewConsumer подключается к consumer group.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, NewConsumerGroupConfig("checkout-service"))
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:      group,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		dlqTopic:   TopicDeadLetterQueue,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне. Consume завершается при каждом rebalance,
// поэтому вызывается в цикле до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for ctx.Err() == nil {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("consume session ended with error")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения партиции. Offset фиксируется только
// после успешной обработки или записи в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.process(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("message left uncommitted")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process выполняет оставшиеся попытки и после их исчерпания пишет сообщение в DLQ.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	delivered := retryCount(message)
	attempts := max(c.maxRetries-delivered, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = c.handler(ctx, message); err == nil || IsPermanent(err) {
			break
		}
		if attempt == attempts {
			break
		}
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":   message.Topic,
			"attempt": attempt,
		}).Warn("message handling failed, retrying")
		if c.retryDelay > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err == nil {
		return nil
	}

	if c.deadLetter == nil {
		return err
	}
	if dlqErr := c.sendToDLQ(ctx, message, err, delivered); dlqErr != nil {
		return fmt.Errorf("send to dlq: %w", dlqErr)
	}
	c.logger.WithField("topic", message.Topic).Info("message moved to dlq")
	return nil
}

func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header == nil || string(header.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(header.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// deadLetterNotification: запись DLQ для сообщения, которое не удалось обработать.
type deadLetterNotification struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

func (c *Consumer) sendToDLQ(ctx context.Context, message *sarama.ConsumerMessage, cause error, delivered int) error {
	failedAt := c.now().Format(time.RFC3339)
	record := deadLetterNotification{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          failedAt,
		RetryCount:        delivered,
	}
	// Запись в DLQ не должна прерываться остановкой consumer group.
	return c.deadLetter.Send(context.WithoutCancel(ctx), c.dlqTopic, record.OriginalKey, record,
		sarama.RecordHeader{Key: []byte(HeaderOriginalTopic), Value: []byte(message.Topic)},
		sarama.RecordHeader{Key: []byte(HeaderErrorMessage), Value: []byte(cause.Error())},
		sarama.RecordHeader{Key: []byte(HeaderFailedAt), Value: []byte(failedAt)},
	)
}

// NotificationDispatcher проверяет подпись уведомления провайдера и применяет его.
type NotificationDispatcher interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// ParsePaymentNotification разбирает уведомление из тела сообщения.
func ParsePaymentNotification(message *sarama.ConsumerMessage) (*PaymentNotification, error) {
	var n PaymentNotification
	if err := json.Unmarshal(message.Value, &n); err != nil {
		return nil, fmt.Errorf("decode payment notification: %w", err)
	}
	return &n, nil
}

// NewPaymentNotificationHandler передаёт подписанные уведомления из topic в тот же
// обработчик, что и HTTP webhook. Нечитаемое или неподписанное сообщение, как и
// неверная подпись, помечается Permanent и сразу уходит в DLQ.
func NewPaymentNotificationHandler(dispatcher NotificationDispatcher) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		n, err := ParsePaymentNotification(message)
		if err != nil {
			return Permanent(err)
		}
		if err := n.Validate(); err != nil {
			return Permanent(err)
		}
		if err := dispatcher.HandleWebhook(ctx, n.Payload, n.Signature); err != nil {
			if errors.Is(err, domain.ErrWebhookVerification) {
				return Permanent(err)
			}
			return err
		}
		return nil
	}
}
