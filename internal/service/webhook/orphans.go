package webhook

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

// ListOrphanPayments возвращает платежи без заказа для ручной сверки, старые первыми.
func (r *Reconciler) ListOrphanPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	if limit <= 0 || limit > defaultOrphanLimit {
		limit = defaultOrphanLimit
	}

	var orphans []domain.Payment
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		orphans, err = repos.Payments.ListOrphans(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list orphan payments: %w", err)
	}
	return orphans, nil
}

// LinkOrphanPayment вручную привязывает платёж-сироту к заказу.
// Заказ не должен быть отменён или уже оплачен, сумма платежа должна совпасть с итогом заказа.
func (r *Reconciler) LinkOrphanPayment(ctx context.Context, paymentID, orderID string) (domain.Order, error) {
	paymentID, orderID = strings.TrimSpace(paymentID), strings.TrimSpace(orderID)
	if paymentID == "" || orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: payment id and order id are required", domain.ErrGatewayIDsRequired)
	}

	var order domain.Order
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		p, err := repos.Payments.Get(ctx, paymentID)
		if err != nil {
			return err
		}
		if !p.IsOrphan() {
			return domain.ErrPaymentNotOrphan
		}
		if p.Status != domain.PaymentStatusCaptured && p.Status != domain.PaymentStatusAuthorized {
			return fmt.Errorf("%w: payment is %s", domain.ErrInvalidStatusTransition, p.Status)
		}

		current, err := repos.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		switch {
		case current.Status == domain.OrderStatusCancelled:
			return fmt.Errorf("%w: order is cancelled", domain.ErrInvalidStatusTransition)
		case current.PaymentStatus == domain.OrderPaymentPaid:
			return fmt.Errorf("%w: order is already paid", domain.ErrInvalidStatusTransition)
		}
		if !domain.WithinTolerance(current.Totals.TotalMinor, p.AmountMinor, r.cfg.AmountToleranceMinor) {
			return fmt.Errorf("%w: order total %s, payment %s", domain.ErrAmountMismatch,
				domain.FormatMinor(current.Totals.TotalMinor), domain.FormatMinor(p.AmountMinor))
		}

		now := r.now()
		p.OrderID = current.ID
		p.UserID = current.UserID
		p.UpdatedAt = now
		if err := repos.Payments.Save(ctx, p); err != nil {
			return fmt.Errorf("link payment: %w", err)
		}

		if p.Status == domain.PaymentStatusCaptured {
			current.PaymentStatus = domain.OrderPaymentPaid
		}
		if current.Status == domain.OrderStatusPending {
			current.Status = domain.OrderStatusConfirmed
		}
		current.Gateway.OrderID = p.GatewayOrderID
		current.Gateway.PaymentID = p.GatewayPaymentID
		current.UpdatedAt = now
		if err := repos.Orders.Save(ctx, current); err != nil {
			return fmt.Errorf("save linked order: %w", err)
		}
		current.Version++

		if err := appendTimeline(ctx, repos, current.ID, domain.TimelinePaymentLinked,
			"payment "+p.GatewayPaymentID+" linked manually", now); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	r.logger.WithFields(log.Fields{
		"payment_id": paymentID,
		"order_id":   orderID,
	}).Info("orphan payment linked")
	return order, nil
}
