// Команда dlq-reprocess перечитывает checkout.dlq и возвращает сообщения в исходные топики.
// По умолчанию работает в режиме dry-run и только логирует кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	envBrokers = "KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	eventsTopic string
	eventTypes  map[string]struct{}
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

// parseConfig разбирает флаги. Брокеры можно задать переменной KAFKA_BROKERS,
// как и для сервиса.
func parseConfig(args []string, lookup func(string) (string, bool), output io.Writer) (config, error) {
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		brokersRaw string
		typesRaw   string
		cfg        config
	)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: "+envBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.eventsTopic, "events-topic", kafka.TopicOrderEvents, "topic for replayed outbox events")
	fs.StringVar(&typesRaw, "event-types", "", "replay only these outbox event types, comma-separated")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish messages; dry-run otherwise")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the most recent messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" && lookup != nil {
		brokersRaw, _ = lookup(envBrokers)
	}
	cfg.brokers = splitList(brokersRaw)
	if types := splitList(typesRaw); len(types) > 0 {
		cfg.eventTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			cfg.eventTypes[t] = struct{}{}
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envBrokers)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.eventsTopic) == "":
		return config{}, errors.New("events-topic is required")
	case cfg.sourceTopic == cfg.eventsTopic:
		return config{}, errors.New("events-topic must differ from source-topic")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, chunk := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(chunk); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithField("component", "dlq-reprocess")
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"events_topic": cfg.eventsTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	deps, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	r := &replayer{cfg: cfg, deps: deps, logger: logger}
	stats, err := r.run(ctx)
	if err != nil {
		return err
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": stats.processed,
		"replayed":  stats.replayed,
		"skipped":   stats.skipped,
	}).Info("dlq replay finished")
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
