package domain

import "time"

// PaymentStatus описывает состояние платёжной записи.
type PaymentStatus string

const (
	// PaymentStatusCreated - платёж заведён, но шлюз ещё ничего не подтвердил.
	PaymentStatusCreated PaymentStatus = "created"
	// PaymentStatusAuthorized - сумма авторизована, но не списана.
	PaymentStatusAuthorized PaymentStatus = "authorized"
	// PaymentStatusCaptured - деньги списаны в пользу мерчанта.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusFailed - шлюз отклонил платёж или подпись не сошлась.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded - деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// FailureReasonSignatureMismatch фиксируется в аудиторской записи при неверной подписи.
const FailureReasonSignatureMismatch = "SIGNATURE_MISMATCH"

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:    {PaymentStatusAuthorized, PaymentStatusCaptured, PaymentStatusFailed},
	PaymentStatusAuthorized: {PaymentStatusCaptured, PaymentStatusFailed, PaymentStatusRefunded},
	PaymentStatusCaptured:   {PaymentStatusRefunded},
	// Поздняя авторизация: шлюз может принять платёж после отказа.
	PaymentStatusFailed:   {PaymentStatusAuthorized, PaymentStatusCaptured},
	PaymentStatusRefunded: nil,
}

// Valid проверяет, что статус входит в перечисление.
func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// CanTransitionTo сообщает, допустим ли переход. Повтор того же статуса переходом не считается.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payment - запись о платеже в шлюзе. OrderID пуст у "сиротских" платежей.
type Payment struct {
	ID               string
	UserID           string
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	AmountMinor      int64
	Currency         string
	Status           PaymentStatus
	Method           string
	Contact          string
	Email            string
	ErrorCode        string
	ErrorDescription string
	FailureReason    string
	RefundID         string
	RefundMinor      int64
	RefundedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	// Version растёт с каждым сохранением; Save отклоняет запись, прочитанную до чужого изменения.
	Version int64
}

// IsOrphan сообщает, что платёж не привязан к заказу.
func (p Payment) IsOrphan() bool {
	return p.OrderID == ""
}

// Adoptable сообщает, можно ли привязать существующую запись к новому заказу при checkout.
func (p Payment) Adoptable() bool {
	if !p.IsOrphan() {
		return false
	}
	switch p.Status {
	case PaymentStatusCreated, PaymentStatusAuthorized, PaymentStatusCaptured:
		return true
	default:
		return false
	}
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.GatewayPaymentID == "" {
		errs = append(errs, ErrGatewayIDsRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if !p.Status.Valid() {
		errs = append(errs, ErrInvalidPaymentStatus)
	}

	return errs
}

// Clone возвращает копию платежа без общих указателей.
func (p Payment) Clone() Payment {
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		p.RefundedAt = &t
	}
	return p
}
