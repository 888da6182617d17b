package webhook_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/metrics"
	"github.com/vladislavdragonenkov/teashop/internal/service/checkout"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
	"github.com/vladislavdragonenkov/teashop/internal/service/payment"
	"github.com/vladislavdragonenkov/teashop/internal/service/webhook"
	"github.com/vladislavdragonenkov/teashop/internal/storage/memory"
)

const (
	webhookSecret = "whsec_test"
	keySecret     = "rzp_secret_test"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(event string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) OrderConfirmed(_ context.Context, o domain.Order) error {
	return n.record("confirmed:" + o.ID)
}

func (n *recordingNotifier) OrderDelivered(_ context.Context, o domain.Order) error {
	return n.record("delivered:" + o.ID)
}

func (n *recordingNotifier) OrderCancelled(_ context.Context, o domain.Order, _ string) error {
	return n.record("cancelled:" + o.ID)
}

func (n *recordingNotifier) PaymentOrphaned(_ context.Context, p domain.Payment) error {
	return n.record("orphaned:" + p.GatewayPaymentID)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type harness struct {
	now         time.Time
	store       *memory.Store
	idempotency *memory.IdempotencyRepository
	gateway     *payment.MockGateway
	notifier    *recordingNotifier
	checkout    *checkout.Service
	reconciler  *webhook.Reconciler
	admin       domain.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	h := &harness{
		now:      fixedNow,
		store:    memory.NewStore(),
		gateway:  payment.NewMockGateway(),
		notifier: &recordingNotifier{},
		admin:    domain.User{ID: "user-admin", Role: domain.UserRoleAdmin},
	}
	clock := func() time.Time { return h.now }
	h.idempotency = memory.NewIdempotencyRepository(memory.WithIdempotencyClock(clock))

	cfg := checkout.DefaultConfig()
	cfg.KeySecret = keySecret
	h.checkout = checkout.NewService(h.store, h.gateway, cfg,
		checkout.WithLogger(logger.WithField("component", "checkout-test")),
		checkout.WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())),
		checkout.WithClock(clock),
	)
	h.reconciler = webhook.NewReconciler(h.store, h.checkout.Ledger(), webhook.Config{
		WebhookSecret:        webhookSecret,
		AmountToleranceMinor: checkout.DefaultAmountToleranceMinor,
	},
		webhook.WithLogger(logger.WithField("component", "webhook-test")),
		webhook.WithIdempotency(h.idempotency),
		webhook.WithNotifier(h.notifier),
		webhook.WithMetrics(metrics.NewWebhookMetricsWithRegisterer(prometheus.NewRegistry())),
		webhook.WithClock(clock),
	)

	h.tx(t, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Products.Save(ctx, domain.Product{
			ID: "darjeeling", Name: "Darjeeling", PriceMinor: 25000, Stock: 5, Category: "tea", IsActive: true,
		}); err != nil {
			return err
		}
		for _, u := range []domain.User{
			{ID: "user-asha", Email: "asha@example.com", Phone: "98765 43210", CreatedAt: fixedNow.Add(-48 * time.Hour)},
			{ID: "user-asha-dup", Email: "asha.work@example.com", Phone: "+91-9876543210", CreatedAt: fixedNow.Add(-time.Hour)},
			{ID: "user-ravi", Email: "ravi@example.com", Phone: "9000000001", CreatedAt: fixedNow.Add(-24 * time.Hour)},
			h.admin,
		} {
			if err := repos.Users.Save(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})

	return h
}

// advance сдвигает часы checkout, reconciler и журнала доставок.
func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) tx(t *testing.T, fn func(ctx context.Context, repos domain.Repositories) error) {
	t.Helper()
	require.NoError(t, h.store.WithinTx(context.Background(), fn))
}

// placeOrder оформляет оплаченный заказ на две пачки darjeeling через checkout.
func (h *harness) placeOrder(t *testing.T, gatewayPaymentID string) domain.Order {
	t.Helper()
	gatewayOrderID := "order_" + gatewayPaymentID
	h.gateway.SetPaid(gatewayOrderID, 57500)
	order, err := h.checkout.PlaceOrder(context.Background(), checkout.PlaceOrderInput{
		UserID: "user-asha",
		Items:  []inventory.Line{{ProductID: "darjeeling", Quantity: 2}},
		ShippingAddress: domain.ShippingAddress{
			FullName: "Asha Rao", Phone: "9876543210", Line1: "12 MG Road",
			City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN",
		},
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: gatewayPaymentID,
		GatewaySignature: payment.SignPayment(gatewayOrderID, gatewayPaymentID, keySecret),
	})
	require.NoError(t, err)
	return order
}

// seedPendingOrder создаёт неоплаченный заказ на одну пачку с уже списанным остатком.
func (h *harness) seedPendingOrder(t *testing.T, id string) domain.Order {
	t.Helper()
	order := domain.Order{
		ID:            id,
		UserID:        "user-asha",
		Items:         []domain.OrderItem{{ProductID: "darjeeling", Name: "Darjeeling", Quantity: 1, UnitPriceMinor: 25000}},
		Totals:        domain.DefaultPricingRules().ComputeFromSubtotal(25000),
		Currency:      domain.DefaultCurrency,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.OrderPaymentPending,
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
	h.tx(t, func(ctx context.Context, repos domain.Repositories) error {
		if _, _, err := repos.Products.DecrementStock(ctx, "darjeeling", 1); err != nil {
			return err
		}
		return repos.Orders.Create(ctx, order)
	})
	return order
}

func (h *harness) seedPayment(t *testing.T, p domain.Payment) {
	t.Helper()
	h.tx(t, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Payments.Create(ctx, p)
	})
}

func (h *harness) deliver(t *testing.T, body []byte, eventID string) {
	t.Helper()
	require.NoError(t, h.reconciler.HandleWebhook(context.Background(), body, payment.SignWebhook(body, webhookSecret), eventID))
}

func (h *harness) order(t *testing.T, id string) domain.Order {
	t.Helper()
	var order domain.Order
	h.tx(t, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		order, err = repos.Orders.Get(ctx, id)
		return err
	})
	return order
}

func (h *harness) payment(t *testing.T, gatewayPaymentID string) domain.Payment {
	t.Helper()
	var p domain.Payment
	h.tx(t, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		p, err = repos.Payments.GetByGatewayPaymentID(ctx, gatewayPaymentID)
		return err
	})
	return p
}

func (h *harness) stock(t *testing.T) int {
	t.Helper()
	var stock int
	h.tx(t, func(ctx context.Context, repos domain.Repositories) error {
		p, err := repos.Products.Get(ctx, "darjeeling")
		stock = p.Stock
		return err
	})
	return stock
}

func (h *harness) timeline(t *testing.T, orderID string) []domain.TimelineEvent {
	t.Helper()
	var events []domain.TimelineEvent
	h.tx(t, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		events, err = repos.Timeline.List(ctx, orderID)
		return err
	})
	return events
}

type paymentFields struct {
	ID               string
	OrderID          string
	Amount           int64
	Contact          string
	Email            string
	Method           string
	ErrorCode        string
	ErrorDescription string
}

func paymentEvent(t *testing.T, event string, p paymentFields) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"entity": "event",
		"event":  event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":                p.ID,
					"entity":            "payment",
					"order_id":          p.OrderID,
					"amount":            p.Amount,
					"currency":          "INR",
					"method":            p.Method,
					"contact":           p.Contact,
					"email":             p.Email,
					"error_code":        p.ErrorCode,
					"error_description": p.ErrorDescription,
					"created_at":        fixedNow.Unix(),
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func refundEvent(t *testing.T, refundID, paymentID string, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"entity": "event",
		"event":  "refund.created",
		"payload": map[string]any{
			"refund": map[string]any{
				"entity": map[string]any{
					"id":         refundID,
					"entity":     "refund",
					"payment_id": paymentID,
					"amount":     amount,
					"created_at": fixedNow.Add(time.Hour).Unix(),
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}
