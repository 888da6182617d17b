// Package notify превращает события заказов и платежей в сообщения transactional outbox.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

// Типы уведомлений в outbox и Kafka.
const (
	EventOrderConfirmed  = "order.confirmed"
	EventOrderDelivered  = "order.delivered"
	EventOrderCancelled  = "order.cancelled"
	EventPaymentOrphaned = "payment.orphaned"

	aggregateOrder   = "order"
	aggregatePayment = "payment"
)

// OrderPayload - тело уведомления о заказе.
type OrderPayload struct {
	Event         string    `json:"event"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TotalMinor    int64     `json:"total_minor"`
	Total         string    `json:"total"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentPayload - тело уведомления о платеже без заказа.
type PaymentPayload struct {
	Event            string    `json:"event"`
	PaymentID        string    `json:"payment_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	GatewayOrderID   string    `json:"gateway_order_id,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	AmountMinor      int64     `json:"amount_minor"`
	Currency         string    `json:"currency"`
	Contact          string    `json:"contact,omitempty"`
	Email            string    `json:"email,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// OutboxNotifier реализует domain.Notifier поверх outbox: доставку выполняет outbox.Worker.
type OutboxNotifier struct {
	repo   domain.OutboxRepository
	logger *log.Entry
	now    func() time.Time
}

// NewOutboxNotifier создаёт notifier. logger может быть nil.
func NewOutboxNotifier(repo domain.OutboxRepository, logger *log.Entry) *OutboxNotifier {
	if logger == nil {
		logger = log.WithField("component", "outbox-notifier")
	}
	return &OutboxNotifier{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (n *OutboxNotifier) OrderConfirmed(ctx context.Context, order domain.Order) error {
	return n.enqueueOrder(ctx, EventOrderConfirmed, order, "")
}

func (n *OutboxNotifier) OrderDelivered(ctx context.Context, order domain.Order) error {
	return n.enqueueOrder(ctx, EventOrderDelivered, order, "")
}

func (n *OutboxNotifier) OrderCancelled(ctx context.Context, order domain.Order, reason string) error {
	return n.enqueueOrder(ctx, EventOrderCancelled, order, reason)
}

// PaymentOrphaned сообщает операторам о платеже, который требует ручной сверки.
func (n *OutboxNotifier) PaymentOrphaned(ctx context.Context, p domain.Payment) error {
	return n.enqueue(ctx, aggregatePayment, p.ID, EventPaymentOrphaned, PaymentPayload{
		Event:            EventPaymentOrphaned,
		PaymentID:        p.ID,
		GatewayPaymentID: p.GatewayPaymentID,
		GatewayOrderID:   p.GatewayOrderID,
		UserID:           p.UserID,
		AmountMinor:      p.AmountMinor,
		Currency:         p.Currency,
		Contact:          p.Contact,
		Email:            p.Email,
		OccurredAt:       n.now(),
	})
}

func (n *OutboxNotifier) enqueueOrder(ctx context.Context, event string, order domain.Order, reason string) error {
	currency := order.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return n.enqueue(ctx, aggregateOrder, order.ID, event, OrderPayload{
		Event:         event,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalMinor:    order.Totals.TotalMinor,
		Total:         domain.FormatMinor(order.Totals.TotalMinor),
		Currency:      currency,
		Reason:        reason,
		OccurredAt:    n.now(),
	})
}

func (n *OutboxNotifier) enqueue(ctx context.Context, aggregateType, aggregateID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	msg, err := n.repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     event,
		Payload:       body,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", event, err)
	}

	n.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event":        event,
		"aggregate_id": aggregateID,
	}).Debug("notification enqueued")
	return nil
}

var _ domain.Notifier = (*OutboxNotifier)(nil)
