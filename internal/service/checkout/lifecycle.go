package checkout

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
	"github.com/vladislavdragonenkov/teashop/internal/tracing"
)

// Cancel отменяет заказ: возвращает товары на склад и помечает оплату возвращённой.
// Допустимо только из pending и confirmed.
func (s *Service) Cancel(ctx context.Context, orderID string, actor domain.User, reason string) (order domain.Order, err error) {
	ctx, span := tracing.Start(ctx, "checkout.Cancel", attribute.String("order_id", orderID))
	defer func() { tracing.End(span, err) }()

	if reason == "" {
		reason = "cancelled by customer"
		if actor.IsAdmin() {
			reason = "cancelled by admin"
		}
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := loadOwnedOrder(ctx, repos, orderID, actor)
		if err != nil {
			return err
		}
		order, err = CancelInTx(ctx, repos, s.ledger, current, reason, s.now())
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordCancellation()
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"actor":    actor.ID,
		"reason":   reason,
	}).Info("order cancelled")

	s.notify(ctx, order.ID, "order.cancelled", func(n domain.Notifier) error {
		return n.OrderCancelled(ctx, order, reason)
	})
	return order, nil
}

// CancelInTx применяет отмену внутри уже открытой транзакции.
// Используется и сценарием отмены, и обработчиком webhook при неуспешной оплате или возврате.
func CancelInTx(ctx context.Context, repos domain.Repositories, ledger *inventory.Ledger, order domain.Order, reason string, now time.Time) (domain.Order, error) {
	if !order.Status.Cancellable() {
		return domain.Order{}, fmt.Errorf("%w: cannot cancel order in status %s", domain.ErrInvalidStatusTransition, order.Status)
	}

	if err := ledger.ReleaseAll(ctx, repos.Products, order.Items); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatusCancelled
	if order.PaymentStatus == domain.OrderPaymentPaid {
		order.PaymentStatus = domain.OrderPaymentRefunded
	}
	cancelledAt := now
	order.CancelledAt = &cancelledAt
	order.UpdatedAt = now

	if err := repos.Orders.Save(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("save cancelled order: %w", err)
	}
	order.Version++

	if err := appendTimeline(ctx, repos, order.ID, now, domain.TimelineEvent{
		Type:   domain.TimelineOrderCancelled,
		Reason: reason,
	}); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// UpdateStatus - административная смена статуса.
// cancelled проходит через Cancel; переход в delivered фиксирует время доставки и уведомляет покупателя.
func (s *Service) UpdateStatus(ctx context.Context, orderID, rawStatus string, actor domain.User) (domain.Order, error) {
	if !actor.IsAdmin() {
		return domain.Order{}, domain.ErrForbidden
	}

	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %q", err, rawStatus)
	}
	if status == domain.OrderStatusCancelled {
		return s.Cancel(ctx, orderID, actor, "cancelled by admin")
	}

	var (
		order   domain.Order
		changed bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status == domain.OrderStatusCancelled {
			return fmt.Errorf("%w: order is cancelled", domain.ErrInvalidStatusTransition)
		}
		if current.Status == status {
			order = current
			return nil
		}

		now := s.now()
		previous := current.Status
		current.Status = status
		current.UpdatedAt = now

		event := domain.TimelineEvent{
			Type:   domain.TimelineStatusChanged,
			Reason: fmt.Sprintf("%s -> %s", previous, status),
		}
		if status == domain.OrderStatusDelivered {
			deliveredAt := now
			current.DeliveredAt = &deliveredAt
			event.Type = domain.TimelineOrderDelivered
		}

		if err := repos.Orders.Save(ctx, current); err != nil {
			return fmt.Errorf("save order status: %w", err)
		}
		current.Version++
		if err := appendTimeline(ctx, repos, current.ID, now, event); err != nil {
			return err
		}

		order = current
		changed = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Info("order status updated")
	}
	if changed && order.Status == domain.OrderStatusDelivered {
		s.notify(ctx, order.ID, "order.delivered", func(n domain.Notifier) error {
			return n.OrderDelivered(ctx, order)
		})
	}
	return order, nil
}
