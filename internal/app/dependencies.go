package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/teashop/internal/health"
	"github.com/vladislavdragonenkov/teashop/internal/service/payment"
	"github.com/vladislavdragonenkov/teashop/internal/storage/memory"
	"github.com/vladislavdragonenkov/teashop/internal/storage/postgres"
)

const storageCheckTimeout = 2 * time.Second

// runtimeDependencies - хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	tx              domain.TxManager
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			tx:              store,
			outboxRepo:      memory.NewOutboxRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  healthcheck.NewStorageChecker("memory", store, storageCheckTimeout),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return runtimeDependencies{
			tx:              store,
			outboxRepo:      postgres.NewOutboxRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker:  healthcheck.NewStorageChecker("postgres", store, storageCheckTimeout),
			closeFn:         store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// newGateway выбирает клиент Razorpay или in-memory шлюз, если ключи не заданы.
func newGateway(cfg Config, logger *log.Entry) domain.PaymentGateway {
	if cfg.mockGateway() {
		logger.Warn("razorpay keys are not configured, using mock payment gateway")
		return payment.NewMockGateway()
	}
	return payment.NewRazorpayClient(payment.Config{
		BaseURL:   cfg.RazorpayBaseURL,
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		Timeout:   cfg.GatewayTimeout,
	}, payment.WithLogger(logger.WithField("component", "razorpay-client")))
}
