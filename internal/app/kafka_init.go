package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// notificationMaxRetries: попыток обработки уведомления до отправки в DLQ.
const notificationMaxRetries = 3

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitList(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initNotificationsConsumer подписывается на topic подписанных уведомлений провайдера.
// Consumer включается только явно заданным topic. Сообщения, которые не удалось
// обработать, уходят в DLQ через тот же producer.
func initNotificationsConsumer(cfg Config, dispatcher kafka.NotificationDispatcher, dlqProducer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := cfg.KafkaBrokerList()
	if len(brokerList) == 0 || strings.TrimSpace(cfg.KafkaNotificationsTopic) == "" {
		return nil, nil
	}

	consumer, err := kafka.NewConsumer(
		brokerList,
		cfg.KafkaGroupID,
		[]string{cfg.KafkaNotificationsTopic},
		kafka.NewPaymentNotificationHandler(dispatcher),
		kafka.WithDeadLetter(dlqProducer, kafka.TopicDeadLetterQueue),
		kafka.WithMaxRetries(notificationMaxRetries),
		kafka.WithConsumerLogger(logger.WithField("component", "payment-notifications")),
	)
	if err != nil {
		return nil, err
	}
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// stopConsumer останавливает consumer если он не nil.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
