package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	defer func() { _ = deps.closeFn() }()

	assert.NotNil(t, deps.baskets)
	assert.NotNil(t, deps.products)
	assert.NotNil(t, deps.orders)
	assert.NotNil(t, deps.outboxRepo)
	assert.NotNil(t, deps.timelineRepo)
	assert.NotNil(t, deps.webhookJournal)
	assert.IsType(t, &payment.MockProvider{}, deps.provider)
	assert.IsType(t, payment.MockVerifier{}, deps.verifier)
	assert.Empty(t, deps.checkers)

	dm, err := deps.deliveryMethods.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "UPS1", dm.ShortName)
	assert.Equal(t, int64(1000), domain.MinorUnits(dm.Price))
}

func TestInitRuntimeDependencies_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"postgres requires dsn", func(c *Config) { c.StorageDriver = StorageDriverPostgres }},
		{"unsupported storage", func(c *Config) { c.StorageDriver = "sqlite" }},
		{"redis requires url", func(c *Config) { c.BasketDriver = BasketDriverRedis }},
		{"unsupported basket driver", func(c *Config) { c.BasketDriver = "etcd" }},
		{"stripe requires key", func(c *Config) { c.PaymentProvider = PaymentProviderStripe }},
		{"unsupported provider", func(c *Config) { c.PaymentProvider = "paypal" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", tc.name))
			assert.Error(t, err)
		})
	}
}

func TestInitRuntimeDependencies_Stripe(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PaymentProvider = PaymentProviderStripe
	cfg.StripeSecretKey = "sk_test_123"

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "stripe"))
	require.NoError(t, err)
	assert.IsType(t, &payment.StripeClient{}, deps.provider)
	assert.IsType(t, &payment.StripeClient{}, deps.verifier)
}

func TestRuntimeDependencies_CloseFnReverseOrder(t *testing.T) {
	var order []string
	deps := &runtimeDependencies{closers: []func() error{
		func() error { order = append(order, "first"); return nil },
		func() error { order = append(order, "second"); return nil },
	}}

	require.NoError(t, deps.closeFn())
	assert.Equal(t, []string{"second", "first"}, order)
	require.NoError(t, deps.closeFn())
	assert.Len(t, order, 2)
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("CHECKOUT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	checker, ok := deps.checkers["postgres"]
	require.True(t, ok, "expected postgres checker")
	check := checker.Check(context.Background())
	assert.Equal(t, healthcheck.StatusHealthy, check.Status)
}

func TestInitRuntimeDependencies_RedisSuccess(t *testing.T) {
	url := strings.TrimSpace(os.Getenv("CHECKOUT_REDIS_TEST_URL"))
	if url == "" {
		t.Skip("redis url is not available")
	}

	cfg := DefaultConfig()
	cfg.BasketDriver = BasketDriverRedis
	cfg.RedisURL = url

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "redis-init"))
	if err != nil {
		t.Skipf("redis is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	checker, ok := deps.checkers["redis"]
	require.True(t, ok, "expected redis checker")
	assert.Equal(t, healthcheck.StatusHealthy, checker.Check(context.Background()).Status)
}
