package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/dedup"
	"github.com/vladislavdragonenkov/checkout/internal/service/httpapi"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает сервис по конфигурации и блокируется до отмены ctx или падения сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.closeFn(); err != nil {
			logger.WithError(err).Warn("close storage with error")
		}
	}()

	checkoutMetrics := metrics.NewCheckoutMetrics()
	workerMetrics := metrics.NewWorkerMetrics()

	synchronizer := checkout.NewIntentSynchronizer(
		deps.baskets,
		deps.products,
		deps.deliveryMethods,
		deps.provider,
		checkout.SyncConfig{
			Currency:           cfg.Currency,
			PaymentMethodTypes: cfg.PaymentMethodTypeList(),
			ProviderTimeout:    cfg.ProviderTimeout,
		},
		checkout.WithSyncLogger(log.WithField("component", "checkout-sync")),
		checkout.WithSyncMetrics(checkoutMetrics),
	)
	resolver := checkout.NewOrderStatusResolver(
		deps.orders,
		deps.timelineRepo,
		deps.outboxRepo,
		checkout.WithResolverLogger(log.WithField("component", "order-resolver")),
		checkout.WithResolverMetrics(checkoutMetrics),
		checkout.WithTransitionStore(deps.transitions),
	)
	dispatcher := checkout.NewWebhookDispatcher(
		deps.verifier,
		resolver,
		deps.webhookJournal,
		checkout.WebhookConfig{SigningSecret: cfg.StripeWebhookSecret, DedupTTL: cfg.WebhookDedupTTL},
		checkout.WithWebhookLogger(log.WithField("component", "webhook")),
		checkout.WithWebhookMetrics(checkoutMetrics),
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	// Kafka опциональна: без брокеров события копятся в outbox.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	var (
		outboxCancel context.CancelFunc
		outboxDone   chan struct{}
		consumer     *kafka.Consumer
	)
	if producer != nil {
		worker := outbox.NewWorker(
			deps.outboxRepo,
			kafka.NewOutboxPublisher(producer, cfg.KafkaEventsTopic),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
			outbox.WithMetrics(workerMetrics),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		outboxCancel, outboxDone = startBackground(ctx, worker.Run)

		healthHandler.RegisterChecker("outbox", healthcheck.NewBacklogChecker("outbox", func(ctx context.Context) (time.Time, error) {
			stats, err := deps.outboxRepo.Stats(ctx)
			return stats.OldestPendingAt, err
		}, cfg.OutboxMaxPendingAge))

		consumer, err = initNotificationsConsumer(cfg, dispatcher, producer, logger)
		if err != nil {
			logger.WithError(err).Warn("failed to create notifications consumer, continuing without it")
		} else if consumer != nil {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Warn("failed to start notifications consumer")
				consumer = nil
			}
		}
	}
	defer stopBackground(outboxCancel, outboxDone, logger)
	defer stopConsumer(consumer, logger)

	janitor := dedup.NewJanitor(
		deps.webhookJournal,
		cfg.JournalCleanupInterval,
		cfg.JournalCleanupBatchSize,
		dedup.WithLogger(log.WithField("component", "webhook-journal-janitor")),
		dedup.WithMetrics(workerMetrics),
	)
	cleanupCancel, cleanupDone := startBackground(ctx, janitor.Run)
	defer stopBackground(cleanupCancel, cleanupDone, logger)

	handler := httpapi.NewPaymentsHandler(synchronizer, dispatcher, log.WithField("component", "http"))
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowAnonymous: cfg.AllowAnonymous,
	}, log.WithField("component", "http"))

	grpcServer, healthServer := newGRPCServer(logger)

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = httpLis.Close()
		_ = grpcLis.Close()
		return fmt.Errorf("listen metrics: %w", err)
	}

	metricsSrv := startOpsServer(ctx, metricsLis, newOpsMux(healthHandler, prometheus.DefaultGatherer), logger)
	defer shutdownHTTP(metricsSrv, logger)

	httpSrv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		shutdownHTTP(httpSrv, logger)
		stopGRPC(grpcServer, healthServer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(httpSrv, logger)
		stopGRPC(grpcServer, healthServer, logger)
		return err
	}
}

// newGRPCServer поднимает gRPC только для health и reflection: probes сервис-меша
// и grpcurl работают так же, как у остальных сервисов.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(grpcServer *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startBackground запускает фоновую задачу с собственным cancel.
func startBackground(parent context.Context, run func(context.Context)) (context.CancelFunc, chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return cancel, done
}

// stopBackground отменяет фоновую задачу и ждёт её не дольше shutdownTimeout.
func stopBackground(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background worker did not stop in time")
	}
}
