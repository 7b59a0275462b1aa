package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/app"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

const (
	envLogLevel  = "CHECKOUT_LOG_LEVEL"
	envLogFormat = "CHECKOUT_LOG_FORMAT"
)

// setupLogger настраивает формат и уровень логирования. Неизвестный уровень
// оставляет info и возвращается как предупреждение.
func setupLogger(logger *log.Logger, lookup app.EnvLookup) error {
	format, _ := lookup(envLogFormat)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	logger.SetLevel(log.InfoLevel)
	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

// readConfig подгружает .env и собирает конфигурацию из окружения.
func readConfig(lookup app.EnvLookup) (app.Config, []error) {
	var warnings []error
	if err := app.LoadDotEnv(); err != nil {
		warnings = append(warnings, err)
	}
	cfg, cfgWarnings := app.LoadConfig(lookup)
	return cfg, append(warnings, cfgWarnings...)
}

func main() {
	gin.SetMode(gin.ReleaseMode)

	cfg, warnings := readConfig(os.LookupEnv)
	if err := setupLogger(log.StandardLogger(), os.LookupEnv); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}
	for _, w := range warnings {
		log.WithError(w).Warn("config value ignored")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Current().Fields()).WithFields(log.Fields{
		"http_addr":        cfg.HTTPAddr,
		"grpc_addr":        cfg.GRPCAddr,
		"metrics_addr":     cfg.MetricsAddr,
		"storage_driver":   cfg.StorageDriver,
		"basket_driver":    cfg.BasketDriver,
		"payment_provider": cfg.PaymentProvider,
	}).Info("запускаем checkout-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("checkout-service остановлен")
}
