package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	BasketDriverMemory = "memory"
	BasketDriverRedis  = "redis"

	PaymentProviderStripe = "stripe"
	PaymentProviderMock   = "mock"
)

// Имена переменных окружения.
const (
	envHTTPAddr                = "CHECKOUT_HTTP_ADDR"
	envGRPCAddr                = "CHECKOUT_GRPC_ADDR"
	envMetricsAddr             = "CHECKOUT_METRICS_ADDR"
	envStorageDriver           = "CHECKOUT_STORAGE_DRIVER"
	envPostgresDSN             = "CHECKOUT_POSTGRES_DSN"
	envPostgresAutoMigrate     = "CHECKOUT_POSTGRES_AUTO_MIGRATE"
	envBasketDriver            = "CHECKOUT_BASKET_DRIVER"
	envRedisURL                = "CHECKOUT_REDIS_URL"
	envBasketTTL               = "CHECKOUT_BASKET_TTL"
	envPaymentProvider         = "CHECKOUT_PAYMENT_PROVIDER"
	envStripeSecretKey         = "STRIPE_SECRET_KEY"
	envStripeWebhookSecret     = "STRIPE_WEBHOOK_SECRET"
	envStripeAPIURL            = "STRIPE_API_URL"
	envCurrency                = "CHECKOUT_CURRENCY"
	envPaymentMethodTypes      = "CHECKOUT_PAYMENT_METHOD_TYPES"
	envProviderTimeout         = "CHECKOUT_PROVIDER_TIMEOUT"
	envJWTSecret               = "CHECKOUT_JWT_SECRET"
	envAllowAnonymous          = "CHECKOUT_ALLOW_ANONYMOUS"
	envKafkaBrokers            = "KAFKA_BROKERS"
	envKafkaEventsTopic        = "CHECKOUT_KAFKA_EVENTS_TOPIC"
	envKafkaNotificationsTopic = "CHECKOUT_KAFKA_NOTIFICATIONS_TOPIC"
	envKafkaGroupID            = "CHECKOUT_KAFKA_GROUP_ID"
	envWebhookDedupTTL         = "CHECKOUT_WEBHOOK_DEDUP_TTL"
	envOutboxPollInterval      = "CHECKOUT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize         = "CHECKOUT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts       = "CHECKOUT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay        = "CHECKOUT_OUTBOX_RETRY_DELAY"
	envOutboxMaxPendingAge     = "CHECKOUT_OUTBOX_MAX_PENDING_AGE"
	envJournalCleanupInterval  = "CHECKOUT_WEBHOOK_JOURNAL_CLEANUP_INTERVAL"
	envJournalCleanupBatchSize = "CHECKOUT_WEBHOOK_JOURNAL_CLEANUP_BATCH_SIZE"
)

// Config описывает настройки запуска сервиса. Все поля сравнимы, поэтому конфиги можно сравнивать через ==.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	BasketDriver string
	RedisURL     string
	BasketTTL    time.Duration

	PaymentProvider     string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string
	Currency            string
	// PaymentMethodTypes: список через запятую, например "card,link".
	PaymentMethodTypes string
	ProviderTimeout    time.Duration

	JWTSecret      string
	AllowAnonymous bool

	KafkaBrokers            string
	KafkaEventsTopic        string
	KafkaNotificationsTopic string
	KafkaGroupID            string

	WebhookDedupTTL time.Duration

	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int
	OutboxRetryDelay    time.Duration
	OutboxMaxPendingAge time.Duration

	JournalCleanupInterval  time.Duration
	JournalCleanupBatchSize int
}

// DefaultConfig возвращает конфигурацию для локального запуска: всё в памяти, mock-провайдер.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		BasketDriver: BasketDriverMemory,
		BasketTTL:    30 * 24 * time.Hour,

		PaymentProvider:    PaymentProviderMock,
		Currency:           "usd",
		PaymentMethodTypes: "card",
		ProviderTimeout:    10 * time.Second,

		KafkaEventsTopic: kafka.TopicOrderEvents,
		KafkaGroupID:     "checkout-service",

		WebhookDedupTTL: 72 * time.Hour,

		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPendingAge: 5 * time.Minute,

		JournalCleanupInterval:  time.Hour,
		JournalCleanupBatchSize: 500,
	}
}

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadDotEnv подгружает переменные из .env-файлов, не перетирая уже заданные.
// Отсутствующие файлы пропускаются.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig читает конфигурацию из окружения. Некорректные значения не прерывают загрузку:
// поле сохраняет значение по умолчанию, а ошибка попадает в warnings.
func LoadConfig(lookup EnvLookup) (Config, []error) {
	cfg := DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	lower := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.ToLower(strings.TrimSpace(v))
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)

	lower(envStorageDriver, &cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	lower(envBasketDriver, &cfg.BasketDriver)
	str(envRedisURL, &cfg.RedisURL)
	duration(envBasketTTL, &cfg.BasketTTL, positiveDuration, "must be > 0")

	lower(envPaymentProvider, &cfg.PaymentProvider)
	str(envStripeSecretKey, &cfg.StripeSecretKey)
	str(envStripeWebhookSecret, &cfg.StripeWebhookSecret)
	str(envStripeAPIURL, &cfg.StripeAPIURL)
	lower(envCurrency, &cfg.Currency)
	str(envPaymentMethodTypes, &cfg.PaymentMethodTypes)
	duration(envProviderTimeout, &cfg.ProviderTimeout, positiveDuration, "must be > 0")

	str(envJWTSecret, &cfg.JWTSecret)
	boolean(envAllowAnonymous, &cfg.AllowAnonymous)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaEventsTopic, &cfg.KafkaEventsTopic)
	str(envKafkaNotificationsTopic, &cfg.KafkaNotificationsTopic)
	str(envKafkaGroupID, &cfg.KafkaGroupID)

	duration(envWebhookDedupTTL, &cfg.WebhookDedupTTL, positiveDuration, "must be > 0")

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	duration(envOutboxMaxPendingAge, &cfg.OutboxMaxPendingAge, nonNegativeDuration, "must be >= 0")

	duration(envJournalCleanupInterval, &cfg.JournalCleanupInterval, positiveDuration, "must be > 0")
	integer(envJournalCleanupBatchSize, &cfg.JournalCleanupBatchSize, positive, "must be > 0")

	return cfg, warnings
}

// Validate проверяет согласованность настроек перед запуском.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%s is required for postgres storage", envPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.BasketDriver {
	case BasketDriverMemory:
	case BasketDriverRedis:
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("%s is required for redis basket storage", envRedisURL))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported basket driver %q", c.BasketDriver))
	}

	switch c.PaymentProvider {
	case PaymentProviderMock:
	case PaymentProviderStripe:
		if c.StripeSecretKey == "" {
			errs = append(errs, fmt.Errorf("%s is required for stripe provider", envStripeSecretKey))
		}
		if c.StripeWebhookSecret == "" {
			errs = append(errs, fmt.Errorf("%s is required for stripe provider", envStripeWebhookSecret))
		}
		if c.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("%s is required for stripe provider", envJWTSecret))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported payment provider %q", c.PaymentProvider))
	}

	if c.JWTSecret == "" && !c.AllowAnonymous && c.PaymentProvider != PaymentProviderStripe {
		errs = append(errs, fmt.Errorf("%s is required unless %s is enabled", envJWTSecret, envAllowAnonymous))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("provider timeout must be > 0"))
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox worker settings must be > 0"))
	}
	if c.JournalCleanupInterval <= 0 || c.JournalCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("webhook journal cleanup settings must be > 0"))
	}

	return errors.Join(errs...)
}

// KafkaBrokerList возвращает адреса брокеров без пустых элементов.
func (c Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// PaymentMethodTypeList возвращает типы методов оплаты для intent.
func (c Config) PaymentMethodTypeList() []string {
	return splitList(c.PaymentMethodTypes)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
