package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/checkout/internal/storage/redis"
)

// runtimeDependencies содержит хранилища и внешние клиенты, выбранные конфигурацией.
type runtimeDependencies struct {
	baskets         domain.BasketRepository
	products        domain.ProductRepository
	deliveryMethods domain.DeliveryMethodRepository
	orders          domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	transitions     domain.OrderTransitionStore
	webhookJournal  domain.WebhookEventRepository

	provider domain.PaymentProvider
	verifier domain.WebhookVerifier

	checkers map[string]healthcheck.Checker
	closers  []func() error
}

// closeFn закрывает подключения в обратном порядке открытия.
func (d *runtimeDependencies) closeFn() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	if err := initStorage(ctx, cfg, deps, logger); err != nil {
		_ = deps.closeFn()
		return nil, err
	}
	if err := initBasketStorage(ctx, cfg, deps, logger); err != nil {
		_ = deps.closeFn()
		return nil, err
	}
	if err := initPaymentProvider(cfg, deps, logger); err != nil {
		_ = deps.closeFn()
		return nil, err
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		catalog := memory.NewCatalog()
		seedDeliveryMethods(catalog)

		deps.products = catalog
		deps.deliveryMethods = catalog.DeliveryMethods()
		deps.orders = memory.NewOrderRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.webhookJournal = memory.NewWebhookEventRepository()
		logger.Info("using in-memory storage")
		return nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires %s", envPostgresDSN)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			version, applied, err := store.MigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			logger.WithFields(log.Fields{"version": version, "applied": applied}).Info("postgres migrations applied")
		}

		deps.products = postgres.NewProductRepository(store)
		deps.deliveryMethods = postgres.NewDeliveryMethodRepository(store)
		deps.orders = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.transitions = postgres.NewOrderTransitionStore(store)
		deps.webhookJournal = postgres.NewWebhookEventRepository(store)
		deps.checkers["postgres"] = healthcheck.NewSimpleChecker("postgres", store.Ping)
		logger.Info("using postgres storage")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initBasketStorage(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch cfg.BasketDriver {
	case BasketDriverMemory, "":
		deps.baskets = memory.NewBasketRepository()
		return nil

	case BasketDriverRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("redis basket storage requires %s", envRedisURL)
		}
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		deps.closers = append(deps.closers, client.Close)
		deps.baskets = redisstore.NewBasketRepository(client, cfg.BasketTTL)
		deps.checkers["redis"] = healthcheck.NewSimpleChecker("redis", redisstore.Ping(client))
		logger.Info("using redis basket storage")
		return nil

	default:
		return fmt.Errorf("unsupported basket driver %q", cfg.BasketDriver)
	}
}

func initPaymentProvider(cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch cfg.PaymentProvider {
	case PaymentProviderMock, "":
		deps.provider = payment.NewMockProvider()
		deps.verifier = payment.MockVerifier{}
		logger.Warn("using mock payment provider")
		return nil

	case PaymentProviderStripe:
		client, err := payment.NewStripeClient(payment.Config{
			SecretKey: cfg.StripeSecretKey,
			APIURL:    cfg.StripeAPIURL,
			Timeout:   cfg.ProviderTimeout,
		}, logger.WithField("component", "stripe"))
		if err != nil {
			return fmt.Errorf("init stripe client: %w", err)
		}
		deps.provider = client
		deps.verifier = client
		return nil

	default:
		return fmt.Errorf("unsupported payment provider %q", cfg.PaymentProvider)
	}
}

// seedDeliveryMethods заполняет справочник доставки для запуска без базы.
func seedDeliveryMethods(catalog interface{ PutDeliveryMethod(domain.DeliveryMethod) }) {
	methods := []domain.DeliveryMethod{
		{ID: 1, ShortName: "UPS1", DeliveryTime: "1-2 Days", Description: "Fastest delivery time", Price: decimal.RequireFromString("10")},
		{ID: 2, ShortName: "UPS2", DeliveryTime: "2-5 Days", Description: "Get it within 5 days", Price: decimal.RequireFromString("5")},
		{ID: 3, ShortName: "UPS3", DeliveryTime: "5-10 Days", Description: "Slower but cheap", Price: decimal.RequireFromString("2")},
		{ID: 4, ShortName: "FREE", DeliveryTime: "1-2 Weeks", Description: "Free! You get what you pay for", Price: decimal.Zero},
	}
	for _, dm := range methods {
		catalog.PutDeliveryMethod(dm)
	}
}
