// Package webhook сверяет состояние платежей и заказов с событиями платёжного шлюза.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/metrics"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
	"github.com/vladislavdragonenkov/teashop/internal/service/payment"
	"github.com/vladislavdragonenkov/teashop/internal/tracing"
)

const (
	// DefaultDedupTTL - сколько помнить обработанные доставки webhook.
	DefaultDedupTTL = 72 * time.Hour

	dedupKeyPrefix     = "webhook:"
	maxProcessAttempts = 3
	finishTimeout      = 5 * time.Second
	defaultOrphanLimit = 100
)

// Результаты обработки для логов и метрик.
const (
	resultApplied          = "applied"
	resultNoop             = "noop"
	resultOrphan           = "orphan"
	resultAnomaly          = "anomaly"
	resultIgnored          = "ignored"
	resultDuplicate        = "duplicate"
	resultError            = "error"
	resultInvalidSignature = "invalid_signature"
	resultInvalidPayload   = "invalid_payload"
)

// Config задаёт параметры reconciler.
type Config struct {
	// WebhookSecret - секрет, которым шлюз подписывает тело webhook.
	WebhookSecret string
	// AmountToleranceMinor - допуск при ручной привязке платежа к заказу.
	AmountToleranceMinor int64
	DedupTTL             time.Duration
	// ProcessingLease - через сколько незавершённая запись о доставке считается брошенной.
	ProcessingLease time.Duration
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithIdempotency включает дедупликацию доставок по X-Razorpay-Event-Id.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(r *Reconciler) {
		r.idempotency = repo
	}
}

// WithNotifier задаёт получателя уведомлений.
func WithNotifier(notifier domain.Notifier) Option {
	return func(r *Reconciler) {
		r.notifier = notifier
	}
}

// WithMetrics задаёт метрики webhook.
func WithMetrics(m *metrics.WebhookMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// Reconciler обрабатывает события шлюза. Повтор события не меняет состояние:
// каждое изменение проверяется таблицей переходов статуса платежа.
type Reconciler struct {
	tx          domain.TxManager
	ledger      *inventory.Ledger
	cfg         Config
	idempotency domain.IdempotencyRepository
	notifier    domain.Notifier
	metrics     *metrics.WebhookMetrics
	logger      *log.Entry
	now         func() time.Time
}

// NewReconciler создаёт обработчик webhook.
func NewReconciler(tx domain.TxManager, ledger *inventory.Ledger, cfg Config, options ...Option) *Reconciler {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultDedupTTL
	}
	if cfg.ProcessingLease <= 0 {
		cfg.ProcessingLease = domain.DefaultProcessingLease
	}
	if ledger == nil {
		ledger = inventory.NewLedger()
	}

	r := &Reconciler{
		tx:     tx,
		ledger: ledger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = log.WithField("component", "webhook-reconciler")
	}
	if r.metrics == nil {
		r.metrics = metrics.NewWebhookMetrics()
	}
	return r
}

// outcome - результат обработки события и действия после фиксации транзакции.
type outcome struct {
	result       string
	orderID      string
	cancelled    *domain.Order
	cancelReason string
	orphan       *domain.Payment
}

// HandleWebhook проверяет подпись и применяет событие.
// Ошибку возвращает только неверная подпись: остальные сбои логируются, шлюз получает 200.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (err error) {
	ctx, span := tracing.Start(ctx, "webhook.Handle", attribute.String("event_id", eventID))
	defer func() { tracing.End(span, err) }()

	if !payment.VerifyWebhookSignature(body, signature, r.cfg.WebhookSecret) {
		r.metrics.RecordEvent("unknown", resultInvalidSignature)
		r.logger.WithField("event_id", eventID).Warn("webhook signature mismatch")
		return domain.ErrWebhookSignatureInvalid
	}

	event, parseErr := ParseEvent(body)
	if parseErr != nil {
		r.metrics.RecordEvent("unknown", resultInvalidPayload)
		r.logger.WithError(parseErr).WithField("event_id", eventID).Error("webhook payload rejected")
		return nil
	}

	logger := r.logger.WithFields(log.Fields{
		"event":    event.Name(),
		"event_id": eventID,
	})

	key, duplicate := r.claim(ctx, eventID, body, logger)
	if duplicate {
		r.metrics.RecordEvent(event.Name(), resultDuplicate)
		logger.Debug("webhook delivery already processed")
		return nil
	}

	out, procErr := r.process(ctx, event)
	if procErr != nil {
		r.metrics.RecordEvent(event.Name(), resultError)
		logger.WithError(procErr).Error("webhook processing failed")
		r.finish(ctx, key, false, logger)
		return nil
	}
	r.finish(ctx, key, true, logger)

	r.metrics.RecordEvent(event.Name(), out.result)
	logger.WithFields(log.Fields{
		"result":   out.result,
		"order_id": out.orderID,
	}).Info("webhook processed")

	r.afterCommit(ctx, out)
	return nil
}

// claim регистрирует доставку в журнале идемпотентности.
// Возвращает ключ для фиксации результата и признак уже обработанной доставки.
// Упавшую или зависшую дольше ProcessingLease запись повторная доставка забирает себе.
func (r *Reconciler) claim(ctx context.Context, eventID string, body []byte, logger *log.Entry) (string, bool) {
	if r.idempotency == nil || eventID == "" {
		return "", false
	}

	key := dedupKeyPrefix + eventID
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	now := r.now()
	ttlAt := now.Add(r.cfg.DedupTTL)

	_, err := r.idempotency.CreateProcessing(ctx, key, hash, ttlAt)
	if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		_, err = r.idempotency.Reclaim(ctx, key, hash, now.Add(-r.cfg.ProcessingLease), ttlAt)
		if err == nil {
			logger.Warn("taking over abandoned webhook delivery")
		}
	}
	switch {
	case err == nil:
		return key, false
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return "", true
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		logger.Warn("webhook event id reused with a different body")
		return "", false
	default:
		logger.WithError(err).Warn("webhook dedup store unavailable")
		return "", false
	}
}

// finish фиксирует результат даже после отмены запроса: иначе запись осталась бы в processing.
func (r *Reconciler) finish(ctx context.Context, key string, ok bool, logger *log.Entry) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	var err error
	if ok {
		err = r.idempotency.MarkDone(ctx, key, nil, 200)
	} else {
		err = r.idempotency.MarkFailed(ctx, key, nil, 500)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to record webhook delivery outcome")
	}
}

// process применяет событие в транзакции. Конфликт уникального gateway payment id
// означает, что checkout успел вставить платёж, конфликт версии - что платёж или заказ
// изменили параллельно. Следующий проход перечитает свежее состояние.
func (r *Reconciler) process(ctx context.Context, event Event) (outcome, error) {
	var (
		out outcome
		err error
	)
	for attempt := 1; attempt <= maxProcessAttempts; attempt++ {
		out, err = r.apply(ctx, event)
		if !retryableConflict(err) {
			break
		}
	}
	return out, err
}

func retryableConflict(err error) bool {
	return errors.Is(err, domain.ErrPaymentConflict) ||
		errors.Is(err, domain.ErrPaymentVersionConflict) ||
		errors.Is(err, domain.ErrOrderVersionConflict)
}

func (r *Reconciler) apply(ctx context.Context, event Event) (outcome, error) {
	var out outcome
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		switch e := event.(type) {
		case PaymentCaptured:
			out, err = r.onCaptured(ctx, repos, e.Payment)
		case PaymentFailed:
			out, err = r.onFailed(ctx, repos, e.Payment)
		case PaymentAuthorized:
			out, err = r.onAuthorized(ctx, repos, e.Payment)
		case RefundCreated:
			out, err = r.onRefund(ctx, repos, e.Refund)
		default:
			out = outcome{result: resultIgnored}
		}
		return err
	})
	return out, err
}

func (r *Reconciler) afterCommit(ctx context.Context, out outcome) {
	if out.orphan != nil {
		r.metrics.RecordOrphanPayment()
		r.logger.WithFields(log.Fields{
			"payment_id":         out.orphan.ID,
			"gateway_payment_id": out.orphan.GatewayPaymentID,
			"user_id":            out.orphan.UserID,
			"amount_minor":       out.orphan.AmountMinor,
		}).WithError(domain.ErrOrphanPayment).Warn("captured payment has no order")
		r.notify(out.orphan.ID, "payment.orphaned", func(n domain.Notifier) error {
			return n.PaymentOrphaned(ctx, *out.orphan)
		})
	}
	if out.cancelled != nil {
		r.notify(out.cancelled.ID, "order.cancelled", func(n domain.Notifier) error {
			return n.OrderCancelled(ctx, *out.cancelled, out.cancelReason)
		})
	}
}

func (r *Reconciler) notify(id, event string, send func(domain.Notifier) error) {
	if r.notifier == nil {
		return
	}
	if err := send(r.notifier); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"id":    id,
			"event": event,
		}).Warn("notification failed")
	}
}

// findPayment возвращает платёж или ok=false, если его нет.
func findPayment(ctx context.Context, repos domain.Repositories, gatewayPaymentID string) (domain.Payment, bool, error) {
	p, err := repos.Payments.GetByGatewayPaymentID(ctx, gatewayPaymentID)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		return domain.Payment{}, false, nil
	case err != nil:
		return domain.Payment{}, false, fmt.Errorf("lookup payment %s: %w", gatewayPaymentID, err)
	}
	return p, true, nil
}

// resolveUser ищет покупателя по телефону, затем по email. Пустой id - не найден.
func resolveUser(ctx context.Context, repos domain.Repositories, contact, email string) (string, error) {
	if phone := domain.NormalizePhone(contact); phone != "" {
		users, err := repos.Users.FindByNormalizedPhone(ctx, phone)
		if err != nil {
			return "", fmt.Errorf("find user by phone: %w", err)
		}
		if len(users) > 0 {
			return users[0].ID, nil
		}
	}
	if email != "" {
		user, err := repos.Users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return user.ID, nil
		case !errors.Is(err, domain.ErrUserNotFound):
			return "", fmt.Errorf("find user by email: %w", err)
		}
	}
	return "", nil
}

func newID() string {
	return uuid.NewString()
}

func appendTimeline(ctx context.Context, repos domain.Repositories, orderID string, eventType domain.TimelineEventType, reason string, at time.Time) error {
	if err := repos.Timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: at,
	}); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	return nil
}
