package webhook

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/checkout"
)

func (r *Reconciler) onCaptured(ctx context.Context, repos domain.Repositories, d PaymentDetails) (outcome, error) {
	existing, ok, err := findPayment(ctx, repos, d.GatewayPaymentID)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return r.recordOrphan(ctx, repos, d)
	}

	now := r.now()
	changed := refreshContact(&existing, d)
	if existing.Status != domain.PaymentStatusCaptured {
		if !existing.Status.CanTransitionTo(domain.PaymentStatusCaptured) {
			r.logger.WithFields(log.Fields{
				"gateway_payment_id": d.GatewayPaymentID,
				"status":             existing.Status,
			}).Warn("capture ignored for payment in terminal status")
			return outcome{result: resultNoop, orderID: existing.OrderID}, nil
		}
		existing.Status = domain.PaymentStatusCaptured
		changed = true
	}
	if !changed {
		return outcome{result: resultNoop, orderID: existing.OrderID}, nil
	}
	existing.UpdatedAt = now
	if err := repos.Payments.Save(ctx, existing); err != nil {
		return outcome{}, fmt.Errorf("save captured payment: %w", err)
	}

	if existing.IsOrphan() {
		return outcome{result: resultApplied}, nil
	}

	order, err := repos.Orders.Get(ctx, existing.OrderID)
	if err != nil {
		return outcome{}, fmt.Errorf("load order %s: %w", existing.OrderID, err)
	}
	if order.Status == domain.OrderStatusCancelled || order.PaymentStatus == domain.OrderPaymentPaid {
		return outcome{result: resultApplied, orderID: order.ID}, nil
	}

	order.PaymentStatus = domain.OrderPaymentPaid
	if order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusConfirmed
	}
	order.UpdatedAt = now
	if err := repos.Orders.Save(ctx, order); err != nil {
		return outcome{}, fmt.Errorf("save paid order: %w", err)
	}
	if err := appendTimeline(ctx, repos, order.ID, domain.TimelinePaymentCaptured, "captured via gateway webhook", now); err != nil {
		return outcome{}, err
	}
	return outcome{result: resultApplied, orderID: order.ID}, nil
}

// recordOrphan сохраняет платёж, под который нет заказа. К заказу он не привязывается.
func (r *Reconciler) recordOrphan(ctx context.Context, repos domain.Repositories, d PaymentDetails) (outcome, error) {
	userID, err := resolveUser(ctx, repos, d.Contact, d.Email)
	if err != nil {
		return outcome{}, err
	}

	now := r.now()
	orphan := domain.Payment{
		ID:               newID(),
		UserID:           userID,
		GatewayOrderID:   d.GatewayOrderID,
		GatewayPaymentID: d.GatewayPaymentID,
		AmountMinor:      d.AmountMinor,
		Currency:         d.Currency,
		Status:           domain.PaymentStatusCaptured,
		Method:           d.Method,
		Contact:          d.Contact,
		Email:            d.Email,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repos.Payments.Create(ctx, orphan); err != nil {
		return outcome{}, err
	}
	return outcome{result: resultOrphan, orphan: &orphan}, nil
}

func (r *Reconciler) onFailed(ctx context.Context, repos domain.Repositories, d PaymentDetails) (outcome, error) {
	existing, ok, err := findPayment(ctx, repos, d.GatewayPaymentID)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		r.logger.WithFields(log.Fields{
			"gateway_payment_id": d.GatewayPaymentID,
			"gateway_order_id":   d.GatewayOrderID,
			"error_code":         d.ErrorCode,
			"error_description":  d.ErrorDescription,
		}).Info("failed payment without local record")
		return outcome{result: resultNoop}, nil
	}
	if !existing.Status.CanTransitionTo(domain.PaymentStatusFailed) {
		return outcome{result: resultNoop, orderID: existing.OrderID}, nil
	}

	now := r.now()
	refreshContact(&existing, d)
	existing.Status = domain.PaymentStatusFailed
	existing.ErrorCode = d.ErrorCode
	existing.ErrorDescription = d.ErrorDescription
	existing.UpdatedAt = now
	if err := repos.Payments.Save(ctx, existing); err != nil {
		return outcome{}, fmt.Errorf("save failed payment: %w", err)
	}
	if existing.IsOrphan() {
		return outcome{result: resultApplied}, nil
	}

	order, err := repos.Orders.Get(ctx, existing.OrderID)
	if err != nil {
		return outcome{}, fmt.Errorf("load order %s: %w", existing.OrderID, err)
	}
	if err := appendTimeline(ctx, repos, order.ID, domain.TimelinePaymentFailed, failureReason(d), now); err != nil {
		return outcome{}, err
	}
	if !order.Status.Cancellable() {
		return outcome{result: resultApplied, orderID: order.ID}, nil
	}

	reason := "payment failed: " + failureReason(d)
	order.PaymentStatus = domain.OrderPaymentFailed
	cancelled, err := checkout.CancelInTx(ctx, repos, r.ledger, order, reason, now)
	if err != nil {
		return outcome{}, err
	}
	return outcome{result: resultApplied, orderID: order.ID, cancelled: &cancelled, cancelReason: reason}, nil
}

func (r *Reconciler) onAuthorized(ctx context.Context, repos domain.Repositories, d PaymentDetails) (outcome, error) {
	existing, ok, err := findPayment(ctx, repos, d.GatewayPaymentID)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return outcome{result: resultIgnored}, nil
	}
	if !existing.Status.CanTransitionTo(domain.PaymentStatusAuthorized) {
		return outcome{result: resultNoop, orderID: existing.OrderID}, nil
	}

	refreshContact(&existing, d)
	existing.Status = domain.PaymentStatusAuthorized
	existing.UpdatedAt = r.now()
	if err := repos.Payments.Save(ctx, existing); err != nil {
		return outcome{}, fmt.Errorf("save authorized payment: %w", err)
	}
	return outcome{result: resultApplied, orderID: existing.OrderID}, nil
}

func (r *Reconciler) onRefund(ctx context.Context, repos domain.Repositories, d RefundDetails) (outcome, error) {
	logger := r.logger.WithFields(log.Fields{
		"gateway_payment_id": d.GatewayPaymentID,
		"refund_id":          d.RefundID,
	})

	existing, ok, err := findPayment(ctx, repos, d.GatewayPaymentID)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		logger.Warn("refund for unknown payment")
		return outcome{result: resultAnomaly}, nil
	}
	if existing.Status == domain.PaymentStatusRefunded {
		return outcome{result: resultNoop, orderID: existing.OrderID}, nil
	}
	if !existing.Status.CanTransitionTo(domain.PaymentStatusRefunded) {
		logger.WithField("status", existing.Status).Warn("refund for payment that was never captured")
		return outcome{result: resultAnomaly, orderID: existing.OrderID}, nil
	}

	now := r.now()
	refundedAt := d.CreatedAt
	if refundedAt.IsZero() {
		refundedAt = now
	}
	existing.Status = domain.PaymentStatusRefunded
	existing.RefundID = d.RefundID
	existing.RefundMinor = d.AmountMinor
	existing.RefundedAt = &refundedAt
	existing.UpdatedAt = now
	if err := repos.Payments.Save(ctx, existing); err != nil {
		return outcome{}, fmt.Errorf("save refunded payment: %w", err)
	}
	if existing.IsOrphan() {
		return outcome{result: resultApplied}, nil
	}

	order, err := repos.Orders.Get(ctx, existing.OrderID)
	if err != nil {
		return outcome{}, fmt.Errorf("load order %s: %w", existing.OrderID, err)
	}
	reason := "refunded via gateway: " + d.RefundID
	if err := appendTimeline(ctx, repos, order.ID, domain.TimelinePaymentRefunded, reason, now); err != nil {
		return outcome{}, err
	}

	if order.Status.Cancellable() {
		cancelled, err := checkout.CancelInTx(ctx, repos, r.ledger, order, reason, now)
		if err != nil {
			return outcome{}, err
		}
		return outcome{result: resultApplied, orderID: order.ID, cancelled: &cancelled, cancelReason: reason}, nil
	}

	if order.PaymentStatus != domain.OrderPaymentRefunded {
		order.PaymentStatus = domain.OrderPaymentRefunded
		order.UpdatedAt = now
		if err := repos.Orders.Save(ctx, order); err != nil {
			return outcome{}, fmt.Errorf("save refunded order: %w", err)
		}
	}
	return outcome{result: resultApplied, orderID: order.ID}, nil
}

// refreshContact переносит метод оплаты и контакты из события. Возвращает true, если что-то изменилось.
// Уже известный gateway order id не перезаписывается.
func refreshContact(p *domain.Payment, d PaymentDetails) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&p.Method, d.Method},
		{&p.Contact, d.Contact},
		{&p.Email, d.Email},
	} {
		if f.src != "" && *f.dst != f.src {
			*f.dst = f.src
			changed = true
		}
	}
	if p.GatewayOrderID == "" && d.GatewayOrderID != "" {
		p.GatewayOrderID = d.GatewayOrderID
		changed = true
	}
	return changed
}

func failureReason(d PaymentDetails) string {
	switch {
	case d.ErrorCode != "" && d.ErrorDescription != "":
		return d.ErrorCode + ": " + d.ErrorDescription
	case d.ErrorCode != "":
		return d.ErrorCode
	case d.ErrorDescription != "":
		return d.ErrorDescription
	default:
		return "unknown reason"
	}
}
