package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
	"github.com/vladislavdragonenkov/teashop/internal/service/payment"
	"github.com/vladislavdragonenkov/teashop/internal/tracing"
)

// maxCommitAttempts - повтор транзакции после конфликта уникального gateway payment id.
// Второй проход видит запись конкурента и либо усыновляет её, либо отклоняет дубликат.
const maxCommitAttempts = 2

// PlaceOrderInput - данные, которые клиент присылает после оплаты в виджете.
type PlaceOrderInput struct {
	UserID           string
	Items            []inventory.Line
	ShippingAddress  domain.ShippingAddress
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
}

func (in *PlaceOrderInput) normalize() {
	in.UserID = strings.TrimSpace(in.UserID)
	in.GatewayOrderID = strings.TrimSpace(in.GatewayOrderID)
	in.GatewayPaymentID = strings.TrimSpace(in.GatewayPaymentID)
	in.GatewaySignature = strings.TrimSpace(in.GatewaySignature)
}

func (in PlaceOrderInput) validate() error {
	if in.UserID == "" {
		return domain.ErrUserRequired
	}
	if err := validateLines(in.Items); err != nil {
		return err
	}
	if err := in.ShippingAddress.Validate(); err != nil {
		return err
	}
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.GatewaySignature == "" {
		return domain.ErrGatewayIDsRequired
	}
	return nil
}

// PlaceOrder создаёт подтверждённый и оплаченный заказ по результату оплаты в шлюзе.
// Либо создаются заказ, платёж, резерв склада и очистка корзины целиком, либо ничего.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (order domain.Order, err error) {
	in.normalize()

	ctx, span := tracing.Start(ctx, "checkout.PlaceOrder",
		attribute.String("user_id", in.UserID),
		attribute.String("gateway_payment_id", in.GatewayPaymentID),
	)
	start := time.Now()
	s.metrics.CheckoutStarted()
	logger := s.logger.WithFields(log.Fields{
		"user_id":            in.UserID,
		"gateway_order_id":   in.GatewayOrderID,
		"gateway_payment_id": in.GatewayPaymentID,
	})
	defer func() {
		s.metrics.CheckoutFinished(resultLabel(err), time.Since(start))
		tracing.End(span, err)
		if err != nil && !domain.IsCheckoutRejection(err) {
			logger.WithError(err).Error("checkout failed")
		}
	}()

	if err := in.validate(); err != nil {
		return domain.Order{}, err
	}
	in.Items = inventory.MergeLines(in.Items)

	if err := s.guardDuplicate(ctx, in); err != nil {
		logger.WithError(err).Info("checkout rejected by duplicate guard")
		return domain.Order{}, err
	}

	if !payment.VerifyPaymentSignature(in.GatewayOrderID, in.GatewayPaymentID, in.GatewaySignature, s.cfg.KeySecret) {
		s.recordSignatureFailure(ctx, in, logger)
		return domain.Order{}, domain.ErrPaymentVerificationFailed
	}

	quote, err := s.price(ctx, in.Items, false)
	if err != nil {
		return domain.Order{}, err
	}

	gatewayOrder, err := s.gateway.FetchOrder(ctx, in.GatewayOrderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch gateway order: %w", err)
	}
	if err := s.checkAmount(quote.Totals.TotalMinor, gatewayOrder); err != nil {
		logger.WithError(err).Warn("checkout amount mismatch")
		return domain.Order{}, err
	}

	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		order, err = s.commitOrder(ctx, in, gatewayOrder)
		if !errors.Is(err, domain.ErrPaymentConflict) && !errors.Is(err, domain.ErrPaymentVersionConflict) {
			break
		}
		logger.WithField("attempt", attempt).Info("payment changed concurrently, retrying checkout transaction")
	}
	if errors.Is(err, domain.ErrPaymentConflict) {
		err = domain.ErrDuplicatePayment
	}
	if err != nil {
		return domain.Order{}, err
	}

	logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"total_minor": order.Totals.TotalMinor,
	}).Info("order placed")

	s.notify(ctx, order.ID, "order.confirmed", func(n domain.Notifier) error {
		return n.OrderConfirmed(ctx, order)
	})

	return order, nil
}

// guardDuplicate отклоняет повтор уже обработанного платежа до обращения к шлюзу.
func (s *Service) guardDuplicate(ctx context.Context, in PlaceOrderInput) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		existing, err := repos.Payments.GetByGatewayPaymentID(ctx, in.GatewayPaymentID)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup payment: %w", err)
		}
		return checkExisting(existing, in)
	})
}

// checkExisting разрешает только усыновление непривязанного платежа того же заказа шлюза.
func checkExisting(existing domain.Payment, in PlaceOrderInput) error {
	if !existing.Adoptable() {
		return domain.ErrDuplicatePayment
	}
	if existing.GatewayOrderID != "" && existing.GatewayOrderID != in.GatewayOrderID {
		return domain.ErrDuplicatePayment
	}
	return nil
}

// recordSignatureFailure сохраняет аудиторскую запись о неверной подписи. Заказ не создаётся.
func (s *Service) recordSignatureFailure(ctx context.Context, in PlaceOrderInput, logger *log.Entry) {
	now := s.now()
	audit := domain.Payment{
		ID:               newID(),
		UserID:           in.UserID,
		GatewayOrderID:   in.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
		Signature:        in.GatewaySignature,
		Currency:         domain.DefaultCurrency,
		Status:           domain.PaymentStatusFailed,
		FailureReason:    domain.FailureReasonSignatureMismatch,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Payments.Create(ctx, audit)
	})
	switch {
	case errors.Is(err, domain.ErrPaymentConflict):
		logger.Warn("signature mismatch for an already recorded payment")
	case err != nil:
		logger.WithError(err).Error("failed to record signature mismatch audit payment")
	default:
		logger.WithField("payment_id", audit.ID).Warn("payment signature mismatch recorded")
	}
}

func (s *Service) checkAmount(expectedMinor int64, gatewayOrder domain.GatewayOrder) error {
	if gatewayOrder.Currency != "" && !strings.EqualFold(gatewayOrder.Currency, domain.DefaultCurrency) {
		return fmt.Errorf("%w: gateway currency %s", domain.ErrAmountMismatch, gatewayOrder.Currency)
	}
	settled := gatewayOrder.SettledMinor()
	if !domain.WithinTolerance(expectedMinor, settled, s.cfg.AmountToleranceMinor) {
		return fmt.Errorf("%w: order total %s, gateway settled %s", domain.ErrAmountMismatch,
			domain.FormatMinor(expectedMinor), domain.FormatMinor(settled))
	}
	return nil
}

func (s *Service) commitOrder(ctx context.Context, in PlaceOrderInput, gatewayOrder domain.GatewayOrder) (domain.Order, error) {
	var order domain.Order

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		existing, err := repos.Payments.GetByGatewayPaymentID(ctx, in.GatewayPaymentID)
		adopt := err == nil
		switch {
		case adopt:
			if err := checkExisting(existing, in); err != nil {
				return err
			}
		case !errors.Is(err, domain.ErrPaymentNotFound):
			return fmt.Errorf("lookup payment: %w", err)
		}

		items, err := s.ledger.ReserveAll(ctx, repos.Products, in.Items)
		if err != nil {
			return err
		}

		totals := s.cfg.Pricing.Compute(items)
		if err := s.checkAmount(totals.TotalMinor, gatewayOrder); err != nil {
			return err
		}

		now := s.now()
		order = domain.Order{
			ID:              newID(),
			UserID:          in.UserID,
			Items:           items,
			Totals:          totals,
			Currency:        domain.DefaultCurrency,
			Status:          domain.OrderStatusConfirmed,
			PaymentStatus:   domain.OrderPaymentPaid,
			ShippingAddress: in.ShippingAddress,
			Gateway: domain.GatewayRefs{
				OrderID:   in.GatewayOrderID,
				PaymentID: in.GatewayPaymentID,
				Signature: in.GatewaySignature,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		reason := "payment verified at checkout"
		if adopt {
			if err := adoptPayment(ctx, repos, existing, order, in, now); err != nil {
				return err
			}
			reason = "adopted payment recorded from gateway webhook"
		} else {
			record := domain.Payment{
				ID:               newID(),
				UserID:           in.UserID,
				OrderID:          order.ID,
				GatewayOrderID:   in.GatewayOrderID,
				GatewayPaymentID: in.GatewayPaymentID,
				Signature:        in.GatewaySignature,
				AmountMinor:      gatewayOrder.SettledMinor(),
				Currency:         domain.DefaultCurrency,
				Status:           domain.PaymentStatusCaptured,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := repos.Payments.Create(ctx, record); err != nil {
				return err
			}
		}

		if err := repos.Carts.Clear(ctx, in.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if err := appendTimeline(ctx, repos, order.ID, now,
			domain.TimelineEvent{Type: domain.TimelineOrderCreated},
			domain.TimelineEvent{Type: domain.TimelinePaymentCaptured, Reason: reason},
		); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func adoptPayment(ctx context.Context, repos domain.Repositories, existing domain.Payment, order domain.Order, in PlaceOrderInput, now time.Time) error {
	existing.OrderID = order.ID
	existing.UserID = in.UserID
	existing.GatewayOrderID = in.GatewayOrderID
	existing.Signature = in.GatewaySignature
	if existing.Status.CanTransitionTo(domain.PaymentStatusCaptured) {
		existing.Status = domain.PaymentStatusCaptured
	}
	existing.UpdatedAt = now
	if err := repos.Payments.Save(ctx, existing); err != nil {
		return fmt.Errorf("adopt payment: %w", err)
	}
	return nil
}

func appendTimeline(ctx context.Context, repos domain.Repositories, orderID string, at time.Time, events ...domain.TimelineEvent) error {
	for _, event := range events {
		event.OrderID = orderID
		if event.Occurred.IsZero() {
			event.Occurred = at
		}
		if err := repos.Timeline.Append(ctx, event); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}
	}
	return nil
}
