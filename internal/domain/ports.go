package domain

import (
	"context"
	"time"
)

// GatewayOrder - заказ на стороне платёжного шлюза.
type GatewayOrder struct {
	ID              string
	AmountMinor     int64
	AmountPaidMinor int64
	Currency        string
	Receipt         string
	Status          string
}

// SettledMinor возвращает сумму, которую шлюз фактически принял: amount_paid, а до захвата - amount.
func (o GatewayOrder) SettledMinor() int64 {
	if o.AmountPaidMinor > 0 {
		return o.AmountPaidMinor
	}
	return o.AmountMinor
}

// PaymentGateway описывает обращения к платёжному шлюзу.
type PaymentGateway interface {
	// CreateOrder заводит заказ в шлюзе; ErrGatewayUnavailable при сетевых ошибках и 5xx.
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (GatewayOrder, error)
	// FetchOrder возвращает сумму и статус заказа, которые видит шлюз.
	FetchOrder(ctx context.Context, gatewayOrderID string) (GatewayOrder, error)
	// KeyID - публичный ключ для платёжного виджета.
	KeyID() string
}

// Notifier отправляет уведомления после фиксации изменений. Ошибки не откатывают заказ.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order Order) error
	OrderDelivered(ctx context.Context, order Order) error
	OrderCancelled(ctx context.Context, order Order, reason string) error
	PaymentOrphaned(ctx context.Context, payment Payment) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
