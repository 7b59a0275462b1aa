package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type stubPartitionSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	offsets    map[int32]int64
	closed     bool
}

func (s *stubPartitionSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	if s.offsets == nil {
		s.offsets = make(map[int32]int64)
	}
	s.offsets[partition] = offset
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

// drainedConsumer отдаёт сообщения и закрывает канал, как партиция, дочитанная до конца.
func drainedConsumer(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	pc := openConsumer(messages...)
	close(pc.messages)
	return pc
}

func openConsumer(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages)+1)
	for _, msg := range messages {
		msgCh <- msg
	}
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError, 1)}
}

type stubReplayProducer struct {
	sendErr error
	sent    []*sarama.ProducerMessage
	closed  bool
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	s.sent = append(s.sent, msg)
	return 0, int64(len(s.sent)), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func testConfig() config {
	return config{
		brokers:     []string{"broker:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		eventsTopic: kafka.TopicOrderEvents,
		limit:       10,
		idleTimeout: 50 * time.Millisecond,
	}
}

func newTestReplayer(cfg config, deps replayDependencies) *replayer {
	return &replayer{cfg: cfg, deps: deps, logger: quietLogger(), now: func() time.Time { return replayNow }}
}

func dlqMessages(t *testing.T, partition int32) []*sarama.ConsumerMessage {
	t.Helper()
	return []*sarama.ConsumerMessage{
		{Partition: partition, Offset: 0, Value: notificationDLQValue(t, kafka.TopicPaymentNotifications)},
		{Partition: partition, Offset: 1, Value: []byte("garbage")},
		{Partition: partition, Offset: 2, Value: outboxDLQValue(t, map[string]any{
			"outbox_id": "outbox-1",
			"payload":   map[string]any{"order_id": "order-1"},
		})},
	}
}

func TestReplayer_DryRunDoesNotPublish(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	pc := drainedConsumer(dlqMessages(t, 0)...)
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: pc}}

	stats, err := newTestReplayer(testConfig(), replayDependencies{client: client, consumer: source}).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 3, replayed: 2, skipped: 1}, stats)
	assert.True(t, pc.closed)
}

func TestReplayer_ExecutePublishesToOriginalTopics(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: drainedConsumer(dlqMessages(t, 0)...)}}
	producer := &stubReplayProducer{}

	stats, err := newTestReplayer(cfg, replayDependencies{client: client, consumer: source, producer: producer}).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.replayed)
	require.Len(t, producer.sent, 2)

	assert.Equal(t, kafka.TopicPaymentNotifications, producer.sent[0].Topic)
	key, err := producer.sent[0].Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "pi_123", string(key))

	assert.Equal(t, kafka.TopicOrderEvents, producer.sent[1].Topic)
	assert.Len(t, producer.sent[1].Headers, 2)
	assert.Equal(t, replayNow, producer.sent[1].Timestamp)
}

func TestReplayer_EventTypeFilter(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true
	cfg.eventTypes = map[string]struct{}{string(kafka.EventTypeOrderPaymentFailed): {}}
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: drainedConsumer(dlqMessages(t, 0)...)}}
	producer := &stubReplayProducer{}

	stats, err := newTestReplayer(cfg, replayDependencies{client: client, consumer: source, producer: producer}).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 3, replayed: 0, skipped: 3}, stats)
	assert.Empty(t, producer.sent)
}

func TestReplayer_LimitSpansPartitions(t *testing.T) {
	cfg := testConfig()
	cfg.limit = 4
	client := &stubOffsetClient{
		partitions: []int32{1, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 3},
			1: {oldest: 0, newest: 3},
		},
	}
	second := drainedConsumer(dlqMessages(t, 1)...)
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{
		0: drainedConsumer(dlqMessages(t, 0)...),
		1: second,
	}}

	stats, err := newTestReplayer(cfg, replayDependencies{client: client, consumer: source}).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.processed)
	assert.Len(t, second.messages, 2, "second partition reads only the remaining budget")
}

func TestReplayer_FromNewestStartsNearTail(t *testing.T) {
	cfg := testConfig()
	cfg.fromNewest = true
	cfg.limit = 2
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 5, newest: 20}}}
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: drainedConsumer()}}

	_, err := newTestReplayer(cfg, replayDependencies{client: client, consumer: source}).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(18), source.offsets[0])

	cfg.limit = 100
	_, err = newTestReplayer(cfg, replayDependencies{client: client, consumer: source}).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), source.offsets[0])
}

func TestReplayer_StopsAtStartupHighWatermark(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	msgs := dlqMessages(t, 0)
	pc := openConsumer(msgs...)
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: pc}}

	stats, err := newTestReplayer(testConfig(), replayDependencies{client: client, consumer: source}).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.processed)
}

func TestReplayer_EmptyPartitionIsSkipped(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 7, newest: 7}}}
	source := &stubPartitionSource{}

	stats, err := newTestReplayer(testConfig(), replayDependencies{client: client, consumer: source}).run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	assert.Empty(t, source.offsets)
}

func TestReplayer_NoPartitions(t *testing.T) {
	client := &stubOffsetClient{}
	stats, err := newTestReplayer(testConfig(), replayDependencies{client: client, consumer: &stubPartitionSource{}}).run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
}

func TestReplayer_IdleTimeout(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 10}}}
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: openConsumer()}}

	cfg := testConfig()
	cfg.idleTimeout = 10 * time.Millisecond
	stats, err := newTestReplayer(cfg, replayDependencies{client: client, consumer: source}).run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
}

func TestReplayer_ContextCancelled(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 10}}}
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: openConsumer()}}

	cfg := testConfig()
	cfg.idleTimeout = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestReplayer(cfg, replayDependencies{client: client, consumer: source}).run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayer_Errors(t *testing.T) {
	boom := errors.New("boom")
	offsets := map[int32]offsetRange{0: {oldest: 0, newest: 3}}

	consumerErr := openConsumer()
	consumerErr.errors <- &sarama.ConsumerError{Topic: kafka.TopicDeadLetterQueue, Partition: 0, Err: boom}

	tests := []struct {
		name    string
		execute bool
		deps    func(t *testing.T) replayDependencies
		wantErr string
	}{
		{
			name:    "missing client",
			deps:    func(*testing.T) replayDependencies { return replayDependencies{consumer: &stubPartitionSource{}} },
			wantErr: "client and consumer are required",
		},
		{
			name:    "execute without producer",
			execute: true,
			deps: func(*testing.T) replayDependencies {
				return replayDependencies{client: &stubOffsetClient{}, consumer: &stubPartitionSource{}}
			},
			wantErr: "producer is required",
		},
		{
			name: "partitions",
			deps: func(*testing.T) replayDependencies {
				return replayDependencies{client: &stubOffsetClient{partitionsErr: boom}, consumer: &stubPartitionSource{}}
			},
			wantErr: "get partitions",
		},
		{
			name: "offsets",
			deps: func(*testing.T) replayDependencies {
				return replayDependencies{
					client:   &stubOffsetClient{partitions: []int32{0}, offsetErr: map[int32]error{0: boom}},
					consumer: &stubPartitionSource{},
				}
			},
			wantErr: "get oldest offset",
		},
		{
			name: "consume partition",
			deps: func(*testing.T) replayDependencies {
				return replayDependencies{
					client:   &stubOffsetClient{partitions: []int32{0}, offsets: offsets},
					consumer: &stubPartitionSource{consumeErr: boom},
				}
			},
			wantErr: "consume partition 0",
		},
		{
			name: "consumer error",
			deps: func(*testing.T) replayDependencies {
				return replayDependencies{
					client:   &stubOffsetClient{partitions: []int32{0}, offsets: offsets},
					consumer: &stubPartitionSource{consumers: map[int32]partitionConsumer{0: consumerErr}},
				}
			},
			wantErr: "partition 0 consumer error",
		},
		{
			name:    "publish",
			execute: true,
			deps: func(t *testing.T) replayDependencies {
				return replayDependencies{
					client:   &stubOffsetClient{partitions: []int32{0}, offsets: offsets},
					consumer: &stubPartitionSource{consumers: map[int32]partitionConsumer{0: drainedConsumer(dlqMessages(t, 0)...)}},
					producer: &stubReplayProducer{sendErr: boom},
				}
			},
			wantErr: "publish replay message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.execute = tt.execute
			_, err := newTestReplayer(cfg, tt.deps(t)).run(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPublishReplay(t *testing.T) {
	assert.Error(t, publishReplay(nil, replayMessage{}, replayNow))

	producer := &stubReplayProducer{}
	require.NoError(t, publishReplay(producer, replayMessage{topic: "t", key: "k", value: []byte("v")}, replayNow))
	require.Len(t, producer.sent, 1)
	value, err := producer.sent[0].Value.Encode()
	require.NoError(t, err)
	assert.Equal(t, "v", string(value))
}

func TestReplayDependencies_CloseAll(t *testing.T) {
	client := &stubOffsetClient{}
	source := &stubPartitionSource{}
	producer := &stubReplayProducer{}

	replayDependencies{client: client, consumer: source, producer: producer}.close()
	assert.True(t, client.closed)
	assert.True(t, source.closed)
	assert.True(t, producer.closed)

	replayDependencies{}.close()
}
