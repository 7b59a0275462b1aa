package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// replayDependencies объединяет клиентов Kafka. producer равен nil в режиме dry-run.
type replayDependencies struct {
	client   offsetClient
	consumer partitionSource
	producer replayProducer
}

func (d replayDependencies) close() {
	if d.producer != nil {
		_ = d.producer.Close()
	}
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.client != nil {
		_ = d.client.Close()
	}
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(cfg config) (replayDependencies, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return replayDependencies{}, fmt.Errorf("create kafka client: %w", err)
	}
	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDependencies{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps := replayDependencies{client: client, consumer: saramaConsumerAdapter{consumer: rawConsumer}}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := sarama.NewSyncProducer(cfg.brokers, kafka.NewSyncProducerConfig("checkout-dlq-reprocess"))
	if err != nil {
		deps.close()
		return replayDependencies{}, fmt.Errorf("create kafka producer: %w", err)
	}
	deps.producer = producer
	return deps, nil
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

type replayer struct {
	cfg    config
	deps   replayDependencies
	logger *log.Entry
	now    func() time.Time
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.deps.client == nil || r.deps.consumer == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if r.cfg.execute && r.deps.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}

	partitions, err := r.deps.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= r.cfg.limit {
			break
		}
		stats, err := r.processPartition(ctx, partition, r.cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// processPartition читает партицию до смещения, зафиксированного на старте,
// чтобы не зациклиться на сообщениях, которые снова попадут в DLQ.
func (r *replayer) processPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := r.deps.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.deps.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.deps.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			if err := r.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	stats.processed++
	logger := r.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	replay, err := decodeDLQMessage(msg, r.cfg.eventsTopic, r.now())
	if err != nil {
		stats.skipped++
		logger.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}
	if !r.accepts(replay) {
		stats.skipped++
		logger.WithField("event_type", replay.eventType).Debug("skip filtered dlq message")
		return nil
	}

	logger = logger.WithFields(log.Fields{
		"target_topic": replay.topic,
		"key":          replay.key,
		"event_type":   replay.eventType,
	})
	if !r.cfg.execute {
		stats.replayed++
		logger.Info("dlq replay candidate")
		return nil
	}
	if err := publishReplay(r.deps.producer, replay, r.now()); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	stats.replayed++
	logger.Info("dlq message replayed")
	return nil
}

// accepts применяет фильтр -event-types. Сообщения без типа (уведомления провайдера)
// при заданном фильтре пропускаются.
func (r *replayer) accepts(msg replayMessage) bool {
	if len(r.cfg.eventTypes) == 0 {
		return true
	}
	_, ok := r.cfg.eventTypes[msg.eventType]
	return ok
}

func publishReplay(producer replayProducer, msg replayMessage, now time.Time) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}
	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Headers:   msg.headers,
		Timestamp: now,
	})
	return err
}
