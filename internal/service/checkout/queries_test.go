package checkout_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
)

func TestQuote(t *testing.T) {
	h := newHarness(t)

	quote, err := h.svc.Quote(context.Background(), []inventory.Line{{ProductID: "darjeeling", Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, int64(75000), quote.Totals.SubtotalMinor)
	assert.Equal(t, int64(3750), quote.Totals.TaxMinor)
	assert.Zero(t, quote.Totals.DeliveryMinor)
	assert.Equal(t, int64(78750), quote.Totals.TotalMinor)
	assert.Equal(t, 5, h.stock(t, "darjeeling"))
}

func TestQuote_ReportsShortageBeforePayment(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Quote(context.Background(), []inventory.Line{{ProductID: "assam", Quantity: 2}})
	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)

	_, err = h.svc.Quote(context.Background(), []inventory.Line{{ProductID: "nope", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrProductUnavailable)

	_, err = h.svc.Quote(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrItemsRequired)
}

func TestQuote_RejectsNegativeLineBeforeMerging(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Quote(context.Background(), []inventory.Line{
		{ProductID: "darjeeling", Quantity: -1},
		{ProductID: "darjeeling", Quantity: 2},
	})
	require.ErrorIs(t, err, domain.ErrItemQtyInvalid)
}

func TestCreateGatewayOrder(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.CreateGatewayOrder(context.Background(), h.customer.ID, 57500)
	require.NoError(t, err)
	assert.NotEmpty(t, res.GatewayOrderID)
	assert.Equal(t, int64(57500), res.AmountMinor)
	assert.Equal(t, domain.DefaultCurrency, res.Currency)
	assert.Equal(t, "rzp_test_mock", res.KeyID)
	assert.Equal(t, 1, h.gateway.CreateCalls)

	_, err = h.svc.CreateGatewayOrder(context.Background(), h.customer.ID, 0)
	require.ErrorIs(t, err, domain.ErrAmountInvalid)

	_, err = h.svc.CreateGatewayOrder(context.Background(), "", 100)
	require.ErrorIs(t, err, domain.ErrUserRequired)
}

func TestCreateGatewayOrder_GatewayFailure(t *testing.T) {
	h := newHarness(t)
	h.gateway.CreateErr = fmt.Errorf("%w: timeout", domain.ErrGatewayUnavailable)

	_, err := h.svc.CreateGatewayOrder(context.Background(), h.customer.ID, 100)
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestListOrders_NewestFirstAndBounded(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 2; i++ {
		_, err := h.svc.PlaceOrder(context.Background(), h.paidInput(
			fmt.Sprintf("order_gw_%d", i), fmt.Sprintf("pay_%d", i), 31250,
			inventory.Line{ProductID: "darjeeling", Quantity: 1}))
		require.NoError(t, err)
	}

	orders, err := h.svc.ListOrders(context.Background(), h.customer.ID, 1)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	orders, err = h.svc.ListOrders(context.Background(), h.customer.ID, 500)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	_, err = h.svc.ListOrders(context.Background(), "", 10)
	require.ErrorIs(t, err, domain.ErrUserRequired)
}

func TestGetOrder_AdminSeesAnyOrder(t *testing.T) {
	h := newHarness(t)
	order := placeDefaultOrder(t, h)

	got, err := h.svc.GetOrder(context.Background(), order.ID, h.admin)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}
