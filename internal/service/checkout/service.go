// Package checkout реализует оформление заказа после оплаты: проверку платежа,
// резервирование склада, создание заказа, а также отмену и смену статуса.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/metrics"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
)

// DefaultAmountToleranceMinor - допустимое расхождение суммы со шлюзом (1 ₹).
const DefaultAmountToleranceMinor = domain.MinorUnitsPerMajor

// Config задаёт правила расчёта и проверки платежа.
type Config struct {
	Pricing domain.PricingRules
	// AmountToleranceMinor - допуск при сверке итоговой суммы со шлюзом.
	AmountToleranceMinor int64
	// KeySecret - секрет ключа API шлюза, которым подписан checkout.
	KeySecret string
}

// DefaultConfig возвращает конфигурацию по умолчанию без секрета.
func DefaultConfig() Config {
	return Config{
		Pricing:              domain.DefaultPricingRules(),
		AmountToleranceMinor: DefaultAmountToleranceMinor,
	}
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNotifier задаёт получателя уведомлений о заказах.
func WithNotifier(notifier domain.Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithMetrics задаёт метрики checkout.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service - сценарии оформления и жизненного цикла заказа.
type Service struct {
	tx       domain.TxManager
	gateway  domain.PaymentGateway
	ledger   *inventory.Ledger
	cfg      Config
	notifier domain.Notifier
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис оформления заказов.
func NewService(tx domain.TxManager, gateway domain.PaymentGateway, cfg Config, options ...Option) *Service {
	if cfg.AmountToleranceMinor < 0 {
		cfg.AmountToleranceMinor = 0
	}

	s := &Service{
		tx:      tx,
		gateway: gateway,
		ledger:  inventory.NewLedger(),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "checkout")
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCheckoutMetrics()
	}
	return s
}

// Ledger возвращает складской реестр сервиса.
func (s *Service) Ledger() *inventory.Ledger {
	return s.ledger
}

// Pricing возвращает правила расчёта итогов.
func (s *Service) Pricing() domain.PricingRules {
	return s.cfg.Pricing
}

// AmountToleranceMinor возвращает допуск сверки сумм.
func (s *Service) AmountToleranceMinor() int64 {
	return s.cfg.AmountToleranceMinor
}

func (s *Service) notify(ctx context.Context, orderID, event string, send func(domain.Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := send(s.notifier); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    event,
		}).Warn("notification failed")
	}
}

func newID() string {
	return uuid.NewString()
}

// resultLabel переводит ошибку оформления в label метрики.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, domain.ErrDuplicatePayment):
		return "duplicate_payment"
	case errors.Is(err, domain.ErrPaymentVerificationFailed):
		return "verification_failed"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return "gateway_unavailable"
	default:
		return metrics.ResultError
	}
}
