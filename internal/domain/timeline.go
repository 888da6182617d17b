package domain

import "time"

// TimelineEventType - вид записи в истории заказа.
type TimelineEventType string

const (
	TimelineOrderCreated    TimelineEventType = "OrderCreated"
	TimelineOrderCancelled  TimelineEventType = "OrderCancelled"
	TimelineStatusChanged   TimelineEventType = "StatusChanged"
	TimelineOrderDelivered  TimelineEventType = "OrderDelivered"
	TimelinePaymentCaptured TimelineEventType = "PaymentCaptured"
	TimelinePaymentFailed   TimelineEventType = "PaymentFailed"
	TimelinePaymentRefunded TimelineEventType = "PaymentRefunded"
	// TimelinePaymentLinked - администратор привязал сиротский платёж к заказу.
	TimelinePaymentLinked TimelineEventType = "PaymentLinked"
)

// TimelineEvent - запись истории заказа. Reason - свободный текст для оператора.
type TimelineEvent struct {
	OrderID  string
	Type     TimelineEventType
	Reason   string
	Occurred time.Time
}
