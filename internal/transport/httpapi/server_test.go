package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/metrics"
	"github.com/vladislavdragonenkov/teashop/internal/service/cart"
	"github.com/vladislavdragonenkov/teashop/internal/service/checkout"
	"github.com/vladislavdragonenkov/teashop/internal/service/payment"
	"github.com/vladislavdragonenkov/teashop/internal/service/webhook"
	"github.com/vladislavdragonenkov/teashop/internal/storage/memory"
	"github.com/vladislavdragonenkov/teashop/internal/transport/httpapi"
)

const (
	keySecret     = "rzp_secret_test"
	webhookSecret = "whsec_test"
)

type apiHarness struct {
	store    *memory.Store
	gateway  *payment.MockGateway
	registry *prometheus.Registry
	router   http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	h := &apiHarness{
		store:    memory.NewStore(),
		gateway:  payment.NewMockGateway(),
		registry: prometheus.NewRegistry(),
	}

	cfg := checkout.DefaultConfig()
	cfg.KeySecret = keySecret
	checkoutSvc := checkout.NewService(h.store, h.gateway, cfg,
		checkout.WithLogger(logger.WithField("component", "checkout-test")),
		checkout.WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(h.registry)),
	)
	cartSvc := cart.NewService(h.store, cfg.Pricing, cart.WithLogger(logger.WithField("component", "cart-test")))
	reconciler := webhook.NewReconciler(h.store, checkoutSvc.Ledger(), webhook.Config{
		WebhookSecret:        webhookSecret,
		AmountToleranceMinor: checkout.DefaultAmountToleranceMinor,
	},
		webhook.WithLogger(logger.WithField("component", "webhook-test")),
		webhook.WithIdempotency(memory.NewIdempotencyRepository()),
		webhook.WithMetrics(metrics.NewWebhookMetricsWithRegisterer(h.registry)),
	)

	server := httpapi.NewServer(h.store, checkoutSvc, cartSvc, reconciler,
		httpapi.WithLogger(logger.WithField("component", "http-test")),
		httpapi.WithMetrics(metrics.NewHTTPMetricsWithRegisterer(h.registry)),
	)
	h.router = server.Router()

	require.NoError(t, h.store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		for _, p := range []domain.Product{
			{ID: "darjeeling", Name: "Darjeeling", PriceMinor: 25000, Stock: 5, Category: "tea", IsActive: true},
			{ID: "assam", Name: "Assam", PriceMinor: 15000, Stock: 1, Category: "tea", IsActive: true},
		} {
			if err := repos.Products.Save(ctx, p); err != nil {
				return err
			}
		}
		for _, u := range []domain.User{
			{ID: "user-asha", Email: "asha@example.com", Phone: "9876543210", Role: domain.UserRoleCustomer},
			{ID: "user-ravi", Email: "ravi@example.com", Phone: "9000000001", Role: domain.UserRoleCustomer},
			{ID: "user-admin", Email: "admin@example.com", Role: domain.UserRoleAdmin},
		} {
			if err := repos.Users.Save(ctx, u); err != nil {
				return err
			}
		}
		return nil
	}))

	return h
}

func (h *apiHarness) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Totals        struct {
		Subtotal   string `json:"subtotal"`
		Tax        string `json:"tax"`
		Delivery   string `json:"delivery"`
		Total      string `json:"total"`
		TotalMinor int64  `json:"totalMinor"`
	} `json:"totals"`
}

var shippingAddress = map[string]string{
	"fullName": "Asha Rao", "phone": "9876543210", "line1": "12 MG Road",
	"city": "Bengaluru", "state": "KA", "postalCode": "560001", "country": "IN",
}

// placeOrder проводит полный сценарий: заказ в шлюзе, затем оформление с подписью.
func (h *apiHarness) placeOrder(t *testing.T, userID, paymentID string) apiOrder {
	t.Helper()

	w := h.do(t, http.MethodPost, "/api/payments/orders", userID, map[string]any{"amount": "575.00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	gatewayOrder := decode[struct {
		RazorpayOrderID string `json:"razorpayOrderId"`
		AmountMinor     int64  `json:"amountMinor"`
		KeyID           string `json:"keyId"`
	}](t, w)
	require.Equal(t, int64(57500), gatewayOrder.AmountMinor)
	require.Equal(t, "rzp_test_mock", gatewayOrder.KeyID)

	w = h.do(t, http.MethodPost, "/api/orders", userID, map[string]any{
		"items":             []map[string]any{{"productId": "darjeeling", "quantity": 2}},
		"shippingAddress":   shippingAddress,
		"razorpayOrderId":   gatewayOrder.RazorpayOrderID,
		"razorpayPaymentId": paymentID,
		"razorpaySignature": payment.SignPayment(gatewayOrder.RazorpayOrderID, paymentID, keySecret),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, strings.ToLower(w.Body.String()), "signature")
	return decode[apiOrder](t, w)
}

func TestAuthentication(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/api/cart", "user-ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", decode[apiError](t, w).Error.Code)

	w = h.do(t, http.MethodGet, "/api/admin/payments/orphans", "user-asha", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodGet, "/api/admin/payments/orphans", "user-admin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutFlow(t *testing.T) {
	h := newAPIHarness(t)

	order := h.placeOrder(t, "user-asha", "pay_http_1")
	assert.Equal(t, "confirmed", order.Status)
	assert.Equal(t, "paid", order.PaymentStatus)
	assert.Equal(t, "500.00", order.Totals.Subtotal)
	assert.Equal(t, "25.00", order.Totals.Tax)
	assert.Equal(t, "50.00", order.Totals.Delivery)
	assert.Equal(t, "575.00", order.Totals.Total)
	assert.Equal(t, int64(57500), order.Totals.TotalMinor)

	w := h.do(t, http.MethodGet, "/api/orders", "user-asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Orders []apiOrder `json:"orders"`
	}](t, w)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, order.ID, list.Orders[0].ID)

	w = h.do(t, http.MethodGet, "/api/orders/"+order.ID+"/timeline", "user-asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	timeline := decode[struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}](t, w)
	assert.Len(t, timeline.Events, 2)

	w = h.do(t, http.MethodGet, "/api/orders/"+order.ID, "user-ravi", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "чужой заказ выглядит как отсутствующий")

	w = h.do(t, http.MethodPost, "/api/orders", "user-asha", map[string]any{
		"items":             []map[string]any{{"productId": "darjeeling", "quantity": 2}},
		"shippingAddress":   shippingAddress,
		"razorpayOrderId":   "order_whatever",
		"razorpayPaymentId": "pay_http_1",
		"razorpaySignature": "deadbeef",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_payment", decode[apiError](t, w).Error.Code)

	count, err := testutil.GatherAndCount(h.registry, "teashop_http_requests_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestPlaceOrder_Rejections(t *testing.T) {
	h := newAPIHarness(t)

	t.Run("insufficient stock", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/checkout/quote", "user-asha", map[string]any{
			"items": []map[string]any{{"productId": "assam", "quantity": 3}},
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode[apiError](t, w)
		assert.Equal(t, "insufficient_stock", body.Error.Code)
		assert.Equal(t, "only 1 available for Assam", body.Error.Message)
	})

	t.Run("unknown product", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/checkout/quote", "user-asha", map[string]any{
			"items": []map[string]any{{"productId": "matcha", "quantity": 1}},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "product_unavailable", decode[apiError](t, w).Error.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		h.gateway.SetPaid("order_sig", 57500)
		w := h.do(t, http.MethodPost, "/api/orders", "user-asha", map[string]any{
			"items":             []map[string]any{{"productId": "darjeeling", "quantity": 2}},
			"shippingAddress":   shippingAddress,
			"razorpayOrderId":   "order_sig",
			"razorpayPaymentId": "pay_sig",
			"razorpaySignature": "0000",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "payment_verification_failed", decode[apiError](t, w).Error.Code)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		h.gateway.SetPaid("order_short", 50000)
		w := h.do(t, http.MethodPost, "/api/orders", "user-asha", map[string]any{
			"items":             []map[string]any{{"productId": "darjeeling", "quantity": 2}},
			"shippingAddress":   shippingAddress,
			"razorpayOrderId":   "order_short",
			"razorpayPaymentId": "pay_short",
			"razorpaySignature": payment.SignPayment("order_short", "pay_short", keySecret),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "amount_mismatch", decode[apiError](t, w).Error.Code)
	})

	t.Run("missing address", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/orders", "user-asha", map[string]any{
			"items": []map[string]any{{"productId": "darjeeling", "quantity": 1}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_failed", decode[apiError](t, w).Error.Code)
	})

	t.Run("negative amount", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/payments/orders", "user-asha", map[string]any{"amount": "-10"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_failed", decode[apiError](t, w).Error.Code)
	})

	t.Run("gateway down", func(t *testing.T) {
		h.gateway.CreateErr = domain.ErrGatewayUnavailable
		defer func() { h.gateway.CreateErr = nil }()

		w := h.do(t, http.MethodPost, "/api/payments/orders", "user-asha", map[string]any{"amount": 575})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{"))
		req.Header.Set("X-User-ID", "user-asha")
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_request", decode[apiError](t, w).Error.Code)
	})
}

func TestCancelAndAdminStatus(t *testing.T) {
	h := newAPIHarness(t)
	order := h.placeOrder(t, "user-asha", "pay_cancel")

	w := h.do(t, http.MethodPost, "/api/orders/"+order.ID+"/cancel", "user-ravi", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, "/api/orders/"+order.ID+"/cancel", "user-asha", map[string]any{"reason": "changed my mind"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cancelled := decode[apiOrder](t, w)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "refunded", cancelled.PaymentStatus)

	w = h.do(t, http.MethodPut, "/api/admin/orders/"+order.ID+"/status", "user-admin", map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_status_transition", decode[apiError](t, w).Error.Code)

	second := h.placeOrder(t, "user-asha", "pay_ship")
	w = h.do(t, http.MethodPut, "/api/admin/orders/"+second.ID+"/status", "user-admin", map[string]any{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_order_status", decode[apiError](t, w).Error.Code)

	w = h.do(t, http.MethodPut, "/api/admin/orders/"+second.ID+"/status", "user-admin", map[string]any{"status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "shipped", decode[apiOrder](t, w).Status)

	w = h.do(t, http.MethodPut, "/api/admin/orders/"+second.ID+"/status", "user-asha", map[string]any{"status": "delivered"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCartEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	type apiCart struct {
		Items []struct {
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
			UnitPrice string `json:"unitPrice"`
		} `json:"items"`
		Totals struct {
			Total string `json:"total"`
		} `json:"totals"`
	}

	w := h.do(t, http.MethodPost, "/api/cart/items", "user-asha", map[string]any{"productId": "darjeeling", "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[apiCart](t, w)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "250.00", view.Items[0].UnitPrice)
	assert.Equal(t, "575.00", view.Totals.Total)

	w = h.do(t, http.MethodPost, "/api/cart/items", "user-asha", map[string]any{"productId": "assam", "quantity": 2})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "only 1 available for Assam", decode[apiError](t, w).Error.Message)

	w = h.do(t, http.MethodPut, "/api/cart/items/darjeeling", "user-asha", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[apiCart](t, w).Items[0].Quantity)

	w = h.do(t, http.MethodPut, "/api/cart/items/assam", "user-asha", map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "cart_item_not_found", decode[apiError](t, w).Error.Code)

	w = h.do(t, http.MethodDelete, "/api/cart/items/darjeeling", "user-asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[apiCart](t, w).Items)

	w = h.do(t, http.MethodDelete, "/api/cart", "user-asha", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, "/api/cart", "user-asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[apiCart](t, w).Items)
}

func TestWebhookAndOrphanLinking(t *testing.T) {
	h := newAPIHarness(t)

	body, err := json.Marshal(map[string]any{
		"entity": "event",
		"event":  "payment.captured",
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       "pay_orphan",
					"order_id": "order_lost",
					"amount":   57500,
					"currency": "INR",
					"status":   "captured",
					"contact":  "+91 98765 43210",
					"email":    "asha@example.com",
				},
			},
		},
	})
	require.NoError(t, err)

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/razorpay", bytes.NewReader(body))
		req.Header.Set("X-Razorpay-Signature", signature)
		req.Header.Set("X-Razorpay-Event-Id", "evt_orphan")
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		return w
	}

	w := send("bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_signature", decode[apiError](t, w).Error.Code)

	w = send(payment.SignWebhook(body, webhookSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = send(payment.SignWebhook(body, webhookSecret))
	require.Equal(t, http.StatusOK, w.Code, "повторная доставка тоже подтверждается")

	w = h.do(t, http.MethodGet, "/api/admin/payments/orphans", "user-admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orphans := decode[struct {
		Payments []struct {
			ID                string `json:"id"`
			UserID            string `json:"userId"`
			RazorpayPaymentID string `json:"razorpayPaymentId"`
			Amount            string `json:"amount"`
		} `json:"payments"`
	}](t, w)
	require.Len(t, orphans.Payments, 1)
	orphan := orphans.Payments[0]
	assert.Equal(t, "pay_orphan", orphan.RazorpayPaymentID)
	assert.Equal(t, "user-asha", orphan.UserID)
	assert.Equal(t, "575.00", orphan.Amount)

	// Заказ без оплаты для привязки: checkout его не создаёт, поэтому кладём напрямую.
	pending := domain.Order{
		ID:            "order-pending",
		UserID:        "user-asha",
		Items:         []domain.OrderItem{{ProductID: "darjeeling", Name: "Darjeeling", Quantity: 2, UnitPriceMinor: 25000}},
		Totals:        domain.DefaultPricingRules().ComputeFromSubtotal(50000),
		Currency:      domain.DefaultCurrency,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.OrderPaymentPending,
	}
	require.NoError(t, h.store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders.Create(ctx, pending)
	}))

	w = h.do(t, http.MethodPost, "/api/admin/payments/"+orphan.ID+"/link", "user-admin", map[string]any{"orderId": pending.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	linked := decode[apiOrder](t, w)
	assert.Equal(t, "confirmed", linked.Status)
	assert.Equal(t, "paid", linked.PaymentStatus)

	w = h.do(t, http.MethodPost, "/api/admin/payments/"+orphan.ID+"/link", "user-admin", map[string]any{"orderId": pending.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "payment_not_orphan", decode[apiError](t, w).Error.Code)
}

func TestWebhook_RejectsOversizedBody(t *testing.T) {
	h := newAPIHarness(t)

	prefix := []byte(`{"event":"payment.captured","padding":"`)
	body := append(prefix, bytes.Repeat([]byte("x"), 1<<20)...)
	body = append(body, []byte(`"}`)...)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", payment.SignWebhook(body, webhookSecret))
	req.Header.Set("X-Razorpay-Event-Id", "evt_huge")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "payload_too_large", decode[apiError](t, w).Error.Code)
}
