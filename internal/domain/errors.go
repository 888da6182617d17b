package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе/корзине.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отрицательного остатка на складе.
	ErrStockNegative = errors.New("stock must be non-negative")
	// Ошибка отсутствующего адреса доставки.
	ErrShippingAddressRequired = errors.New("shipping address is incomplete")
	// Ошибка отсутствующих идентификаторов платёжного шлюза.
	ErrGatewayIDsRequired = errors.New("gateway order id, payment id and signature are required")
	// Ошибка неположительной суммы платежа.
	ErrAmountInvalid = errors.New("amount must be greater than zero")
	// Ошибка несоответствия итоговой суммы слагаемым.
	ErrTotalsInconsistent = errors.New("order total does not equal subtotal + tax + delivery")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCartItemNotFound возвращается, если позиции нет в корзине.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrForbidden возвращается при попытке работать с чужим заказом.
	ErrForbidden = errors.New("operation is not allowed for this user")

	// ErrDuplicatePayment - платёж с таким gateway payment id уже обработан.
	ErrDuplicatePayment = errors.New("payment already processed")
	// ErrPaymentConflict - конкурентная вставка платежа с тем же gateway payment id.
	ErrPaymentConflict = errors.New("payment with this gateway payment id already exists")
	// ErrPaymentVersionConflict - платёж изменили параллельно после чтения.
	ErrPaymentVersionConflict = errors.New("payment version conflict")
	// ErrPaymentVerificationFailed - подпись платежа не совпала.
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	// ErrAmountMismatch - сумма, списанная шлюзом, не совпадает с рассчитанной.
	ErrAmountMismatch = errors.New("amount mismatch between order and gateway")
	// ErrInsufficientStock - на складе недостаточно товара.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductUnavailable - товар отсутствует или снят с продажи.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrInvalidStatusTransition - переход статуса заказа запрещён.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	// ErrInvalidOrderStatus - статус вне допустимого перечисления.
	ErrInvalidOrderStatus = errors.New("invalid order status")
	// ErrInvalidPaymentStatus - статус платежа вне перечисления.
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	// ErrGatewayUnavailable - платёжный шлюз недоступен (сеть, таймаут, 5xx).
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrOrphanPayment - платёж получен шлюзом, но заказа под него нет.
	ErrOrphanPayment = errors.New("orphan payment requires manual reconciliation")
	// ErrWebhookSignatureInvalid - подпись webhook не прошла проверку.
	ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")
	// ErrWebhookPayloadInvalid - тело webhook не удалось разобрать.
	ErrWebhookPayloadInvalid = errors.New("webhook payload invalid")
	// ErrPaymentNotOrphan - платёж уже привязан к заказу.
	ErrPaymentNotOrphan = errors.New("payment is already linked to an order")

	// ErrOutboxPublish - ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different payload")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// StockError описывает нехватку конкретного товара.
type StockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("only %d available for %s", e.Available, e.Name)
	}
	return fmt.Sprintf("only %d available", e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// UnavailableReason уточняет, почему товар недоступен.
type UnavailableReason string

const (
	UnavailableMissing  UnavailableReason = "missing"
	UnavailableInactive UnavailableReason = "inactive"
)

// UnavailableError описывает отсутствующий или неактивный товар.
type UnavailableError struct {
	ProductID string
	Name      string
	Reason    UnavailableReason
}

func (e *UnavailableError) Error() string {
	if e.Reason == UnavailableInactive && e.Name != "" {
		return fmt.Sprintf("%s is no longer available", e.Name)
	}
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

func (e *UnavailableError) Unwrap() error { return ErrProductUnavailable }

// IsCheckoutRejection сообщает, является ли ошибка ожидаемым бизнес-отказом оформления заказа.
func IsCheckoutRejection(err error) bool {
	for _, target := range []error{
		ErrDuplicatePayment,
		ErrPaymentVerificationFailed,
		ErrAmountMismatch,
		ErrInsufficientStock,
		ErrProductUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
