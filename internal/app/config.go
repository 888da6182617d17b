package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/teashop/internal/service/checkout"
	"github.com/vladislavdragonenkov/teashop/internal/service/webhook"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска витрины.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// AllowMockGateway разрешает in-memory шлюз, если ключи Razorpay не заданы.
	AllowMockGateway      bool
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	GatewayTimeout        time.Duration

	// GSTPercent - ставка налога строкой ("5", "12.5").
	GSTPercent           string
	AmountToleranceMinor int64

	KafkaBrokers       string
	NotificationsTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxAge - возраст самого старого неотправленного уведомления, после которого health degraded.
	OutboxMaxAge time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
	WebhookDedupTTL             time.Duration
	WebhookProcessingLease      time.Duration

	SeedDemoCatalog bool
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		GatewayTimeout:              10 * time.Second,
		GSTPercent:                  "5",
		AmountToleranceMinor:        checkout.DefaultAmountToleranceMinor,
		NotificationsTopic:          kafka.TopicNotifications,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxAge:                5 * time.Minute,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		WebhookDedupTTL:             webhook.DefaultDedupTTL,
		WebhookProcessingLease:      domain.DefaultProcessingLease,
	}
}

// Validate проверяет согласованность настроек до старта.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if !c.mockGateway() && c.RazorpayWebhookSecret == "" {
		errs = append(errs, errors.New("razorpay webhook secret is required with a real gateway"))
	}
	if c.RazorpayKeyID == "" && c.RazorpayKeySecret == "" && !c.AllowMockGateway {
		errs = append(errs, errors.New("razorpay key id and secret are required unless the mock gateway is allowed"))
	}
	if (c.RazorpayKeyID == "") != (c.RazorpayKeySecret == "") {
		errs = append(errs, errors.New("razorpay key id and secret must be set together"))
	}

	if _, err := c.pricingRules(); err != nil {
		errs = append(errs, err)
	}
	if c.AmountToleranceMinor < 0 {
		errs = append(errs, errors.New("amount tolerance must be non-negative"))
	}

	return errors.Join(errs...)
}

// mockGateway сообщает, что ключи шлюза не заданы и используется in-memory шлюз.
func (c Config) mockGateway() bool {
	return c.RazorpayKeyID == "" && c.RazorpayKeySecret == ""
}

func (c Config) pricingRules() (domain.PricingRules, error) {
	rules := domain.DefaultPricingRules()
	if strings.TrimSpace(c.GSTPercent) == "" {
		return rules, nil
	}
	percent, err := decimal.NewFromString(strings.TrimSpace(c.GSTPercent))
	if err != nil {
		return domain.PricingRules{}, fmt.Errorf("invalid gst percent %q: %w", c.GSTPercent, err)
	}
	if percent.IsNegative() {
		return domain.PricingRules{}, fmt.Errorf("gst percent must be non-negative, got %s", c.GSTPercent)
	}
	rules.TaxPercent = percent
	return rules, nil
}
