package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending - заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed - оплата подтверждена, склад зарезервирован.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing - заказ собирается.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped - заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered - заказ вручён покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled - заказ отменён, товары возвращены на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус входит в перечисление.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Cancellable сообщает, можно ли отменить заказ из текущего статуса.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// ParseOrderStatus разбирает статус из внешнего ввода.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrInvalidOrderStatus
	}
	return status, nil
}

// OrderPaymentStatus - агрегированный статус оплаты на уровне заказа.
type OrderPaymentStatus string

const (
	OrderPaymentPending  OrderPaymentStatus = "pending"
	OrderPaymentPaid     OrderPaymentStatus = "paid"
	OrderPaymentFailed   OrderPaymentStatus = "failed"
	OrderPaymentRefunded OrderPaymentStatus = "refunded"
)

// OrderItem - замороженный снимок позиции на момент покупки.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	// UnitPriceMinor - цена за единицу в пайсах на момент покупки.
	UnitPriceMinor int64
}

// LineTotalMinor возвращает стоимость позиции.
func (i OrderItem) LineTotalMinor() int64 {
	return int64(i.Quantity) * i.UnitPriceMinor
}

// ShippingAddress - снимок адреса доставки.
type ShippingAddress struct {
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Validate проверяет обязательные поля адреса.
func (a ShippingAddress) Validate() error {
	for _, v := range []string{a.FullName, a.Phone, a.Line1, a.City, a.State, a.PostalCode} {
		if strings.TrimSpace(v) == "" {
			return ErrShippingAddressRequired
		}
	}
	return nil
}

// GatewayRefs хранит идентификаторы платёжного шлюза, полученные клиентом.
type GatewayRefs struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	Totals          Totals
	Currency        string
	Status          OrderStatus
	PaymentStatus   OrderPaymentStatus
	ShippingAddress ShippingAddress
	Gateway         GatewayRefs
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	var subtotal int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		subtotal += item.LineTotalMinor()
	}
	if subtotal != o.Totals.SubtotalMinor || !o.Totals.Consistent() {
		errs = append(errs, ErrTotalsInconsistent)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidOrderStatus)
	}

	return errs
}

// Sanitized возвращает копию заказа без подписи платежа.
func (o Order) Sanitized() Order {
	o.Gateway.Signature = ""
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		o.CancelledAt = &t
	}
	return o
}
