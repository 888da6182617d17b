package checkout_test

import (
	"context"
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
	"github.com/vladislavdragonenkov/teashop/internal/storage/memory"
)

const testKeySecret = "rzp_secret_test"

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *recordingNotifier) record(event string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) OrderConfirmed(_ context.Context, order domain.Order) error {
	return n.record("confirmed:" + order.ID)
}

func (n *recordingNotifier) OrderDelivered(_ context.Context, order domain.Order) error {
	return n.record("delivered:" + order.ID)
}

func (n *recordingNotifier) OrderCancelled(_ context.Context, order domain.Order, _ string) error {
	return n.record("cancelled:" + order.ID)
}

func (n *recordingNotifier) PaymentOrphaned(_ context.Context, p domain.Payment) error {
	return n.record("orphaned:" + p.ID)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type harness struct {
	store    *memory.Store
	gateway  *payment.MockGateway
	notifier *recordingNotifier
	svc      *checkout.Service
	customer domain.User
	admin    domain.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	h := &harness{
		store:    memory.NewStore(),
		gateway:  payment.NewMockGateway(),
		notifier: &recordingNotifier{},
		customer: domain.User{ID: "user-asha", Name: "Asha", Phone: "9876543210", Role: domain.UserRoleCustomer},
		admin:    domain.User{ID: "user-admin", Name: "Admin", Role: domain.UserRoleAdmin},
	}

	cfg := checkout.DefaultConfig()
	cfg.KeySecret = testKeySecret
	h.svc = checkout.NewService(h.store, h.gateway, cfg,
		checkout.WithLogger(logger.WithField("component", "checkout-test")),
		checkout.WithNotifier(h.notifier),
		checkout.WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())),
		checkout.WithClock(func() time.Time { return fixedNow }),
	)

	require.NoError(t, h.store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		for _, p := range []domain.Product{
			{ID: "darjeeling", Name: "Darjeeling First Flush", PriceMinor: 25000, Stock: 5, Category: "tea", IsActive: true},
			{ID: "assam", Name: "Assam", PriceMinor: 20000, Stock: 1, Category: "tea", IsActive: true},
			{ID: "retired", Name: "Old Blend", PriceMinor: 10000, Stock: 10, Category: "tea", IsActive: false},
		} {
			if err := repos.Products.Save(ctx, p); err != nil {
				return err
			}
		}
		for _, u := range []domain.User{h.customer, h.admin} {
			if err := repos.Users.Save(ctx, u); err != nil {
				return err
			}
		}
		cart := domain.Cart{UserID: h.customer.ID}
		cart.Set("darjeeling", 2)
		return repos.Carts.Save(ctx, cart)
	}))

	return h
}

func address() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   "Asha Rao",
		Phone:      "9876543210",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "IN",
	}
}

// paidInput регистрирует оплату в mock-шлюзе и возвращает корректно подписанный запрос.
func (h *harness) paidInput(gatewayOrderID, gatewayPaymentID string, paidMinor int64, lines ...inventory.Line) checkout.PlaceOrderInput {
	h.gateway.SetPaid(gatewayOrderID, paidMinor)
	return checkout.PlaceOrderInput{
		UserID:           h.customer.ID,
		Items:            lines,
		ShippingAddress:  address(),
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: gatewayPaymentID,
		GatewaySignature: payment.SignPayment(gatewayOrderID, gatewayPaymentID, testKeySecret),
	}
}

func (h *harness) stock(t *testing.T, productID string) int {
	t.Helper()
	var stock int
	require.NoError(t, h.store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		p, err := repos.Products.Get(ctx, productID)
		stock = p.Stock
		return err
	}))
	return stock
}

func (h *harness) cart(t *testing.T) domain.Cart {
	t.Helper()
	var cart domain.Cart
	require.NoError(t, h.store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		var err error
		cart, err = repos.Carts.Get(ctx, h.customer.ID)
		return err
	}))
	return cart
}

func (h *harness) paymentByGatewayID(t *testing.T, gatewayPaymentID string) (domain.Payment, error) {
	t.Helper()
	var p domain.Payment
	err := h.store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		var err error
		p, err = repos.Payments.GetByGatewayPaymentID(ctx, gatewayPaymentID)
		return err
	})
	return p, err
}
