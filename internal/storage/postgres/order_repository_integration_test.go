package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

func sampleOrder(id, userID string, createdAt time.Time) domain.Order {
	items := []domain.OrderItem{
		{ProductID: "nilgiri", Name: "Nilgiri Frost", Quantity: 2, UnitPriceMinor: 25000},
	}
	return domain.Order{
		ID:            id,
		UserID:        userID,
		Items:         items,
		Totals:        domain.DefaultPricingRules().Compute(items),
		Currency:      domain.DefaultCurrency,
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.OrderPaymentPaid,
		ShippingAddress: domain.ShippingAddress{
			FullName:   "Asha Rao",
			Phone:      "9876543210",
			Line1:      "12 MG Road",
			City:       "Bengaluru",
			State:      "KA",
			PostalCode: "560001",
			Country:    "IN",
		},
		Gateway:   domain.GatewayRefs{OrderID: "order_gw_" + id, PaymentID: "pay_" + id, Signature: "sig"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "user-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "user-1", now.Add(-time.Minute))

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Orders.Create(ctx, order1); err != nil {
			return err
		}
		return repos.Orders.Create(ctx, order2)
	}))

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders.Create(ctx, order1)
	})
	require.ErrorIs(t, err, domain.ErrOrderVersionConflict)

	_ = store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		got, err := repos.Orders.Get(ctx, order1.ID)
		require.NoError(t, err)
		assert.Equal(t, order1.Items, got.Items)
		assert.Equal(t, order1.Totals, got.Totals)
		assert.Equal(t, order1.ShippingAddress, got.ShippingAddress)
		assert.Equal(t, order1.Gateway, got.Gateway)

		listed, err := repos.Orders.ListByUser(ctx, "user-1", 1)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, order2.ID, listed[0].ID)
		assert.Len(t, listed[0].Items, 1)

		delivered := now.Add(time.Hour)
		got.Status = domain.OrderStatusDelivered
		got.DeliveredAt = &delivered
		got.UpdatedAt = delivered
		require.NoError(t, repos.Orders.Save(ctx, got))
		assert.ErrorIs(t, repos.Orders.Save(ctx, got), domain.ErrOrderVersionConflict)

		missing := got
		missing.ID = "missing"
		assert.ErrorIs(t, repos.Orders.Save(ctx, missing), domain.ErrOrderNotFound)

		reloaded, err := repos.Orders.Get(ctx, order1.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), reloaded.Version)
		require.NotNil(t, reloaded.DeliveredAt)
		assert.True(t, reloaded.DeliveredAt.Equal(delivered))

		_, err = repos.Orders.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		return nil
	})
}

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Timeline.Append(ctx, domain.TimelineEvent{OrderID: "timeline-order", Type: domain.TimelineOrderCreated}); err != nil {
			return err
		}
		return repos.Timeline.Append(ctx, domain.TimelineEvent{
			OrderID:  "timeline-order",
			Type:     domain.TimelineOrderCancelled,
			Reason:   "customer request",
			Occurred: createdAt.Add(-time.Hour),
		})
	}))

	_ = store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		events, err := repos.Timeline.List(ctx, "timeline-order")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.TimelineOrderCancelled, events[0].Type)
		assert.False(t, events[1].Occurred.IsZero())
		return nil
	})
}

func TestStore_PostgresRollbackAndConditionalStock(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Products.Save(ctx, domain.Product{ID: "assam", Name: "Assam", PriceMinor: 20000, Stock: 3, IsActive: true})
	}))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, ok, err := repos.Products.DecrementStock(ctx, "assam", 2); err != nil || !ok {
			t.Fatalf("decrement: ok=%v err=%v", ok, err)
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_ = store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		p, err := repos.Products.Get(ctx, "assam")
		require.NoError(t, err)
		assert.Equal(t, 3, p.Stock)

		_, ok, err := repos.Products.DecrementStock(ctx, "assam", 4)
		require.NoError(t, err)
		assert.False(t, ok)

		p, ok, err = repos.Products.DecrementStock(ctx, "assam", 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, p.Stock)

		assert.ErrorIs(t, repos.Products.IncrementStock(ctx, "ghost", 1), domain.ErrProductNotFound)
		return nil
	})
}

func TestPaymentRepository_PostgresUniqueAndOrphans(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)

	payment := domain.Payment{
		ID:               "pm-1",
		GatewayOrderID:   "order_gw_1",
		GatewayPaymentID: "pay_1",
		AmountMinor:      57500,
		Currency:         domain.DefaultCurrency,
		Status:           domain.PaymentStatusCaptured,
		Contact:          "+919876543210",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Payments.Create(ctx, payment)
	}))

	dup := payment
	dup.ID = "pm-2"
	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Payments.Create(ctx, dup)
	})
	require.ErrorIs(t, err, domain.ErrPaymentConflict)

	_ = store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		orphans, err := repos.Payments.ListOrphans(ctx, 10)
		require.NoError(t, err)
		require.Len(t, orphans, 1)
		assert.Equal(t, "pm-1", orphans[0].ID)
		assert.True(t, orphans[0].IsOrphan())

		order := sampleOrder("order-linked", "user-1", now)
		require.NoError(t, repos.Orders.Create(ctx, order))

		got, err := repos.Payments.GetByGatewayPaymentID(ctx, "pay_1")
		require.NoError(t, err)
		got.OrderID = order.ID
		require.NoError(t, repos.Payments.Save(ctx, got))
		assert.ErrorIs(t, repos.Payments.Save(ctx, got), domain.ErrPaymentVersionConflict, "stale copy must not overwrite")

		reloaded, err := repos.Payments.Get(ctx, "pm-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), reloaded.Version)
		assert.Equal(t, order.ID, reloaded.OrderID)

		orphans, err = repos.Payments.ListOrphans(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, orphans)
		return nil
	})
}

func TestUserAndCartRepositories_Postgres(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Round(time.Microsecond)

	_ = store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		require.NoError(t, repos.Users.Save(ctx, domain.User{ID: "u-late", Phone: "+91-98765-43210", CreatedAt: base.Add(time.Minute)}))
		require.NoError(t, repos.Users.Save(ctx, domain.User{ID: "u-early", Phone: "9876543210", Email: "Asha@Example.com", CreatedAt: base}))

		users, err := repos.Users.FindByNormalizedPhone(ctx, "9876543210")
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "u-early", users[0].ID)

		user, err := repos.Users.FindByEmail(ctx, "asha@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u-early", user.ID)

		cart, err := repos.Carts.Get(ctx, "u-early")
		require.NoError(t, err)
		assert.Empty(t, cart.Items)

		cart.Set("assam", 2)
		cart.Set("nilgiri", 1)
		require.NoError(t, repos.Carts.Save(ctx, cart))

		cart, err = repos.Carts.Get(ctx, "u-early")
		require.NoError(t, err)
		assert.Equal(t, []domain.CartItem{{ProductID: "assam", Quantity: 2}, {ProductID: "nilgiri", Quantity: 1}}, cart.Items)

		require.NoError(t, repos.Carts.Clear(ctx, "u-early"))
		cart, err = repos.Carts.Get(ctx, "u-early")
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
		return nil
	})
}
