package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/app"
	"github.com/vladislavdragonenkov/teashop/internal/version"
)

const (
	envHTTPAddr                    = "TEASHOP_HTTP_ADDR"
	envGRPCAddr                    = "TEASHOP_GRPC_ADDR"
	envMetricsAddr                 = "TEASHOP_METRICS_ADDR"
	envLogLevel                    = "TEASHOP_LOG_LEVEL"
	envLogFormat                   = "TEASHOP_LOG_FORMAT"
	envStorageDriver               = "TEASHOP_STORAGE_DRIVER"
	envPostgresDSN                 = "TEASHOP_POSTGRES_DSN"
	envPostgresAutoMigrate         = "TEASHOP_POSTGRES_AUTO_MIGRATE"
	envAllowMockGateway            = "TEASHOP_ALLOW_MOCK_GATEWAY"
	envRazorpayKeyID               = "RAZORPAY_KEY_ID"
	envRazorpayKeySecret           = "RAZORPAY_KEY_SECRET"
	envRazorpayWebhookSecret       = "RAZORPAY_WEBHOOK_SECRET"
	envRazorpayBaseURL             = "RAZORPAY_BASE_URL"
	envGatewayTimeout              = "TEASHOP_GATEWAY_TIMEOUT"
	envGSTPercent                  = "TEASHOP_GST_PERCENT"
	envAmountToleranceMinor        = "TEASHOP_AMOUNT_TOLERANCE_MINOR"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envNotificationsTopic          = "TEASHOP_NOTIFICATIONS_TOPIC"
	envOutboxPollInterval          = "TEASHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "TEASHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "TEASHOP_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "TEASHOP_OUTBOX_RETRY_DELAY"
	envOutboxMaxAge                = "TEASHOP_OUTBOX_MAX_AGE"
	envIdempotencyCleanupInterval  = "TEASHOP_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "TEASHOP_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envWebhookDedupTTL             = "TEASHOP_WEBHOOK_DEDUP_TTL"
	envWebhookProcessingLease      = "TEASHOP_WEBHOOK_PROCESSING_LEASE"
	envSeedDemoCatalog             = "TEASHOP_SEED_DEMO_CATALOG"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if v, ok := lookupTrimmed(lookup, envLogFormat); ok && strings.EqualFold(v, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}

	log.SetLevel(log.InfoLevel)
	if v, ok := lookupTrimmed(lookup, envLogLevel); ok {
		level, err := log.ParseLevel(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v", envLogLevel, v, err))
		} else {
			log.SetLevel(level)
		}
	}
	return warnings
}

// readConfigFromEnv собирает конфигурацию из окружения.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию и добавляется предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v", key, value, err))
	}

	for key, dst := range map[string]*string{
		envHTTPAddr:              &cfg.HTTPAddr,
		envGRPCAddr:              &cfg.GRPCAddr,
		envMetricsAddr:           &cfg.MetricsAddr,
		envPostgresDSN:           &cfg.PostgresDSN,
		envRazorpayKeyID:         &cfg.RazorpayKeyID,
		envRazorpayKeySecret:     &cfg.RazorpayKeySecret,
		envRazorpayWebhookSecret: &cfg.RazorpayWebhookSecret,
		envRazorpayBaseURL:       &cfg.RazorpayBaseURL,
		envGSTPercent:            &cfg.GSTPercent,
		envKafkaBrokers:          &cfg.KafkaBrokers,
		envNotificationsTopic:    &cfg.NotificationsTopic,
	} {
		if v, ok := lookupTrimmed(lookup, key); ok {
			*dst = v
		}
	}
	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}

	for key, dst := range map[string]*bool{
		envPostgresAutoMigrate: &cfg.PostgresAutoMigrate,
		envAllowMockGateway:    &cfg.AllowMockGateway,
		envSeedDemoCatalog:     &cfg.SeedDemoCatalog,
	} {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseBool(v)
			if err != nil {
				warn(key, v, err)
				continue
			}
			*dst = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	for key, dst := range map[string]*int{
		envOutboxBatchSize:             &cfg.OutboxBatchSize,
		envOutboxMaxAttempts:           &cfg.OutboxMaxAttempts,
		envIdempotencyCleanupBatchSize: &cfg.IdempotencyCleanupBatchSize,
	} {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseInt(v, positive, "must be > 0")
			if err != nil {
				warn(key, v, err)
				continue
			}
			*dst = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envAmountToleranceMinor); ok {
		parsed, err := parseInt(v, func(v int) bool { return v >= 0 }, "must be >= 0")
		if err != nil {
			warn(envAmountToleranceMinor, v, err)
		} else {
			cfg.AmountToleranceMinor = int64(parsed)
		}
	}

	positiveDuration := func(v time.Duration) bool { return v > 0 }
	for key, dst := range map[string]*time.Duration{
		envGatewayTimeout:             &cfg.GatewayTimeout,
		envOutboxPollInterval:         &cfg.OutboxPollInterval,
		envOutboxMaxAge:               &cfg.OutboxMaxAge,
		envIdempotencyCleanupInterval: &cfg.IdempotencyCleanupInterval,
		envWebhookDedupTTL:            &cfg.WebhookDedupTTL,
		envWebhookProcessingLease:     &cfg.WebhookProcessingLease,
	} {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseDuration(v, positiveDuration, "must be > 0")
			if err != nil {
				warn(key, v, err)
				continue
			}
			*dst = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envOutboxRetryDelay); ok {
		parsed, err := parseDuration(v, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
		if err != nil {
			warn(envOutboxRetryDelay, v, err)
		} else {
			cfg.OutboxRetryDelay = parsed
		}
	}

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func main() {
	warnings := setupLogger(os.LookupEnv)
	cfg, cfgWarnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range append(warnings, cfgWarnings...) {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := version.Current()
	if build.Dev() {
		log.Warn("бинарь собран без -ldflags, версия в health и логах будет dev")
	}
	log.WithFields(build.Fields()).WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
	}).Info("запускаем витрину")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("витрина остановлена")
}
