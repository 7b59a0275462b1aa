package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil, mapLookup(map[string]string{envBrokers: " b1:9092, ,b2:9092 "}), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Equal(t, kafka.TopicOrderEvents, cfg.eventsTopic)
	assert.Equal(t, defaultReplayLimit, cfg.limit)
	assert.Equal(t, defaultIdleTimeout, cfg.idleTimeout)
	assert.False(t, cfg.execute)
	assert.Nil(t, cfg.eventTypes)
}

func TestParseConfig_FromFlags(t *testing.T) {
	args := []string{
		"-brokers=flag:9092",
		"-source-topic=custom.dlq",
		"-events-topic=custom.events",
		"-event-types=order.payment_failed, order.payment_received",
		"-limit=5",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	}
	cfg, err := parseConfig(args, mapLookup(map[string]string{envBrokers: "env:9092"}), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"flag:9092"}, cfg.brokers)
	assert.Equal(t, "custom.dlq", cfg.sourceTopic)
	assert.Equal(t, "custom.events", cfg.eventsTopic)
	assert.Equal(t, 5, cfg.limit)
	assert.True(t, cfg.execute)
	assert.True(t, cfg.fromNewest)
	assert.Equal(t, 3*time.Second, cfg.idleTimeout)
	assert.Len(t, cfg.eventTypes, 2)
	assert.Contains(t, cfg.eventTypes, "order.payment_failed")
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	env := mapLookup(map[string]string{envBrokers: "b:9092"})
	tests := []struct {
		name   string
		args   []string
		lookup func(string) (string, bool)
	}{
		{name: "no brokers", lookup: mapLookup(nil)},
		{name: "nil lookup", lookup: nil},
		{name: "empty source topic", args: []string{"-source-topic= "}, lookup: env},
		{name: "empty events topic", args: []string{"-events-topic="}, lookup: env},
		{name: "replay into dlq", args: []string{"-events-topic=" + kafka.TopicDeadLetterQueue}, lookup: env},
		{name: "zero limit", args: []string{"-limit=0"}, lookup: env},
		{name: "zero idle timeout", args: []string{"-idle-timeout=0s"}, lookup: env},
		{name: "unknown flag", args: []string{"-target-topic=x"}, lookup: env},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args, tt.lookup, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestParseConfig_Help(t *testing.T) {
	_, err := parseConfig([]string{"-h"}, mapLookup(nil), io.Discard)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	t.Cleanup(func() { newReplayDependencies = oldDeps })

	cfg := testConfig()
	cfg.execute = true

	newReplayDependencies = func(config) (replayDependencies, error) {
		return replayDependencies{}, errors.New("deps failed")
	}
	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deps failed")

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: drainedConsumer(dlqMessages(t, 0)...)}}
	producer := &stubReplayProducer{}
	newReplayDependencies = func(got config) (replayDependencies, error) {
		assert.Equal(t, cfg.brokers, got.brokers)
		return replayDependencies{client: client, consumer: source, producer: producer}, nil
	}

	require.NoError(t, run(context.Background(), cfg))
	assert.Len(t, producer.sent, 2)
	assert.True(t, client.closed)
	assert.True(t, source.closed)
	assert.True(t, producer.closed)
}

func TestMain_DryRunWithStubbedDeps(t *testing.T) {
	oldDeps := newReplayDependencies
	oldArgs := os.Args
	t.Cleanup(func() {
		newReplayDependencies = oldDeps
		os.Args = oldArgs
	})

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	source := &stubPartitionSource{consumers: map[int32]partitionConsumer{0: drainedConsumer(&sarama.ConsumerMessage{
		Offset: 0,
		Value:  notificationDLQValue(t, kafka.TopicPaymentNotifications),
	})}}
	newReplayDependencies = func(config) (replayDependencies, error) {
		return replayDependencies{client: client, consumer: source}, nil
	}

	os.Args = []string{"dlq-reprocess", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}
	main()

	assert.True(t, client.closed)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}
