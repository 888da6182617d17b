package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/cart"
	"github.com/vladislavdragonenkov/teashop/internal/service/checkout"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
)

// Суммы наружу отдаются строкой в рупиях ("575.00") и целым числом в пайсах.

type lineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func toLines(in []lineRequest) []inventory.Line {
	lines := make([]inventory.Line, 0, len(in))
	for _, l := range in {
		lines = append(lines, inventory.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines
}

type addressDTO struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

func (a addressDTO) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func addressFromDomain(a domain.ShippingAddress) addressDTO {
	return addressDTO{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type createGatewayOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type gatewayOrderResponse struct {
	RazorpayOrderID string `json:"razorpayOrderId"`
	Amount          string `json:"amount"`
	AmountMinor     int64  `json:"amountMinor"`
	Currency        string `json:"currency"`
	KeyID           string `json:"keyId"`
}

func gatewayOrderFromResult(r checkout.GatewayOrderResult) gatewayOrderResponse {
	return gatewayOrderResponse{
		RazorpayOrderID: r.GatewayOrderID,
		Amount:          domain.FormatMinor(r.AmountMinor),
		AmountMinor:     r.AmountMinor,
		Currency:        r.Currency,
		KeyID:           r.KeyID,
	}
}

type quoteRequest struct {
	Items []lineRequest `json:"items"`
}

type placeOrderRequest struct {
	Items             []lineRequest `json:"items"`
	ShippingAddress   addressDTO    `json:"shippingAddress"`
	RazorpayOrderID   string        `json:"razorpayOrderId"`
	RazorpayPaymentID string        `json:"razorpayPaymentId"`
	RazorpaySignature string        `json:"razorpaySignature"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type linkPaymentRequest struct {
	OrderID string `json:"orderId"`
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type totalsDTO struct {
	Subtotal       string `json:"subtotal"`
	Tax            string `json:"tax"`
	TaxBasisPoints int64  `json:"taxBasisPoints"`
	Delivery       string `json:"delivery"`
	Total          string `json:"total"`
	TotalMinor     int64  `json:"totalMinor"`
}

func totalsFromDomain(t domain.Totals) totalsDTO {
	return totalsDTO{
		Subtotal:       domain.FormatMinor(t.SubtotalMinor),
		Tax:            domain.FormatMinor(t.TaxMinor),
		TaxBasisPoints: t.TaxBasisPoints,
		Delivery:       domain.FormatMinor(t.DeliveryMinor),
		Total:          domain.FormatMinor(t.TotalMinor),
		TotalMinor:     t.TotalMinor,
	}
}

type orderItemDTO struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

func orderItemsFromDomain(items []domain.OrderItem) []orderItemDTO {
	out := make([]orderItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: domain.FormatMinor(item.UnitPriceMinor),
			LineTotal: domain.FormatMinor(item.LineTotalMinor()),
		})
	}
	return out
}

type quoteResponse struct {
	Items  []orderItemDTO `json:"items"`
	Totals totalsDTO      `json:"totals"`
}

type orderResponse struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	Status            string         `json:"status"`
	PaymentStatus     string         `json:"paymentStatus"`
	Currency          string         `json:"currency"`
	Items             []orderItemDTO `json:"items"`
	Totals            totalsDTO      `json:"totals"`
	ShippingAddress   addressDTO     `json:"shippingAddress"`
	RazorpayOrderID   string         `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID string         `json:"razorpayPaymentId,omitempty"`
	Version           int64          `json:"version"`
	DeliveredAt       *time.Time     `json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time     `json:"cancelledAt,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// orderFromDomain никогда не отдаёт подпись платежа.
func orderFromDomain(o domain.Order) orderResponse {
	o = o.Sanitized()
	return orderResponse{
		ID:                o.ID,
		UserID:            o.UserID,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		Currency:          o.Currency,
		Items:             orderItemsFromDomain(o.Items),
		Totals:            totalsFromDomain(o.Totals),
		ShippingAddress:   addressFromDomain(o.ShippingAddress),
		RazorpayOrderID:   o.Gateway.OrderID,
		RazorpayPaymentID: o.Gateway.PaymentID,
		Version:           o.Version,
		DeliveredAt:       o.DeliveredAt,
		CancelledAt:       o.CancelledAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func ordersFromDomain(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderFromDomain(o))
	}
	return out
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func timelineFromDomain(events []domain.TimelineEvent) []timelineEventDTO {
	out := make([]timelineEventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventDTO{Type: string(e.Type), Reason: e.Reason, Occurred: e.Occurred})
	}
	return out
}

type paymentResponse struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId,omitempty"`
	OrderID           string    `json:"orderId,omitempty"`
	RazorpayOrderID   string    `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID string    `json:"razorpayPaymentId"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	Method            string    `json:"method,omitempty"`
	Contact           string    `json:"contact,omitempty"`
	Email             string    `json:"email,omitempty"`
	FailureReason     string    `json:"failureReason,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func paymentsFromDomain(payments []domain.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentResponse{
			ID:                p.ID,
			UserID:            p.UserID,
			OrderID:           p.OrderID,
			RazorpayOrderID:   p.GatewayOrderID,
			RazorpayPaymentID: p.GatewayPaymentID,
			Amount:            domain.FormatMinor(p.AmountMinor),
			Currency:          p.Currency,
			Status:            string(p.Status),
			Method:            p.Method,
			Contact:           p.Contact,
			Email:             p.Email,
			FailureReason:     p.FailureReason,
			CreatedAt:         p.CreatedAt,
		})
	}
	return out
}

type cartItemDTO struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	InStock   int    `json:"inStock"`
}

type cartResponse struct {
	UserID string        `json:"userId"`
	Items  []cartItemDTO `json:"items"`
	Totals totalsDTO     `json:"totals"`
}

func cartFromView(v cart.View) cartResponse {
	items := make([]cartItemDTO, 0, len(v.Items))
	for _, item := range v.Items {
		items = append(items, cartItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: domain.FormatMinor(item.UnitPriceMinor),
			InStock:   item.InStock,
		})
	}
	return cartResponse{UserID: v.UserID, Items: items, Totals: totalsFromDomain(v.Totals)}
}
