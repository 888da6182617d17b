package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

// Имена событий шлюза, которые обрабатывает reconciler.
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventPaymentAuthorized = "payment.authorized"
	EventRefundCreated     = "refund.created"
)

// Event - разобранное событие webhook. Конкретный тип определяет обработку.
type Event interface {
	Name() string
	isEvent()
}

// PaymentDetails - поля платежа из payload.payment.entity.
type PaymentDetails struct {
	GatewayPaymentID string
	GatewayOrderID   string
	AmountMinor      int64
	Currency         string
	Method           string
	Contact          string
	Email            string
	ErrorCode        string
	ErrorDescription string
	CreatedAt        time.Time
}

// RefundDetails - поля возврата из payload.refund.entity.
type RefundDetails struct {
	RefundID         string
	GatewayPaymentID string
	AmountMinor      int64
	CreatedAt        time.Time
}

// PaymentCaptured - деньги списаны. Неизвестный платёж сохраняется как сирота.
type PaymentCaptured struct{ Payment PaymentDetails }

// PaymentFailed - оплата не прошла; заказ, ожидающий оплату, отменяется.
type PaymentFailed struct{ Payment PaymentDetails }

// PaymentAuthorized - платёж авторизован, но ещё не списан. Меняет только известные платежи.
type PaymentAuthorized struct{ Payment PaymentDetails }

// RefundCreated - шлюз вернул деньги по платежу.
type RefundCreated struct{ Refund RefundDetails }

// Unsupported - событие, которое сервис подтверждает, но не обрабатывает.
type Unsupported struct{ Event string }

func (PaymentCaptured) Name() string   { return EventPaymentCaptured }
func (PaymentFailed) Name() string     { return EventPaymentFailed }
func (PaymentAuthorized) Name() string { return EventPaymentAuthorized }
func (RefundCreated) Name() string     { return EventRefundCreated }
func (u Unsupported) Name() string     { return u.Event }

func (PaymentCaptured) isEvent()   {}
func (PaymentFailed) isEvent()     {}
func (PaymentAuthorized) isEvent() {}
func (RefundCreated) isEvent()     {}
func (Unsupported) isEvent()       {}

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	Contact          string `json:"contact"`
	Email            string `json:"email"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	CreatedAt int64  `json:"created_at"`
}

// ParseEvent разбирает тело webhook. Ошибки оборачивают domain.ErrWebhookPayloadInvalid.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWebhookPayloadInvalid, err)
	}

	name := strings.TrimSpace(env.Event)
	switch name {
	case "":
		return nil, fmt.Errorf("%w: event name is missing", domain.ErrWebhookPayloadInvalid)
	case EventPaymentCaptured, EventPaymentFailed, EventPaymentAuthorized:
		if env.Payload.Payment == nil {
			return nil, fmt.Errorf("%w: %s without payment entity", domain.ErrWebhookPayloadInvalid, name)
		}
		details, err := env.Payload.Payment.Entity.toDetails()
		if err != nil {
			return nil, err
		}
		switch name {
		case EventPaymentCaptured:
			return PaymentCaptured{Payment: details}, nil
		case EventPaymentFailed:
			return PaymentFailed{Payment: details}, nil
		default:
			return PaymentAuthorized{Payment: details}, nil
		}
	case EventRefundCreated:
		if env.Payload.Refund == nil {
			return nil, fmt.Errorf("%w: %s without refund entity", domain.ErrWebhookPayloadInvalid, name)
		}
		details, err := env.Payload.Refund.Entity.toDetails()
		if err != nil {
			return nil, err
		}
		return RefundCreated{Refund: details}, nil
	default:
		return Unsupported{Event: name}, nil
	}
}

func (e paymentEntity) toDetails() (PaymentDetails, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return PaymentDetails{}, fmt.Errorf("%w: payment id is missing", domain.ErrWebhookPayloadInvalid)
	}
	if e.Amount < 0 {
		return PaymentDetails{}, fmt.Errorf("%w: negative payment amount", domain.ErrWebhookPayloadInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(e.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return PaymentDetails{
		GatewayPaymentID: id,
		GatewayOrderID:   strings.TrimSpace(e.OrderID),
		AmountMinor:      e.Amount,
		Currency:         currency,
		Method:           e.Method,
		Contact:          strings.TrimSpace(e.Contact),
		Email:            strings.TrimSpace(e.Email),
		ErrorCode:        e.ErrorCode,
		ErrorDescription: e.ErrorDescription,
		CreatedAt:        unixTime(e.CreatedAt),
	}, nil
}

func (e refundEntity) toDetails() (RefundDetails, error) {
	id, paymentID := strings.TrimSpace(e.ID), strings.TrimSpace(e.PaymentID)
	if id == "" || paymentID == "" {
		return RefundDetails{}, fmt.Errorf("%w: refund id and payment id are required", domain.ErrWebhookPayloadInvalid)
	}
	if e.Amount < 0 {
		return RefundDetails{}, fmt.Errorf("%w: negative refund amount", domain.ErrWebhookPayloadInvalid)
	}
	return RefundDetails{
		RefundID:         id,
		GatewayPaymentID: paymentID,
		AmountMinor:      e.Amount,
		CreatedAt:        unixTime(e.CreatedAt),
	}, nil
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
