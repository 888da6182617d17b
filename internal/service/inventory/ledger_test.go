package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
	"github.com/vladislavdragonenkov/teashop/internal/storage/memory"
)

func newStore(t *testing.T, products ...domain.Product) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		for _, p := range products {
			if err := repos.Products.Save(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))
	return store
}

func stockOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	var stock int
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		p, err := repos.Products.Get(ctx, id)
		stock = p.Stock
		return err
	}))
	return stock
}

func TestLedger_ReserveSnapshotsPrice(t *testing.T) {
	store := newStore(t, domain.Product{ID: "darjeeling", Name: "Darjeeling First Flush", PriceMinor: 45000, Stock: 4, IsActive: true})
	ledger := inventory.NewLedger()

	var item domain.OrderItem
	err := store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		var err error
		item, err = ledger.Reserve(ctx, repos.Products, "darjeeling", 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderItem{ProductID: "darjeeling", Name: "Darjeeling First Flush", Quantity: 3, UnitPriceMinor: 45000}, item)
	assert.Equal(t, 1, stockOf(t, store, "darjeeling"))
}

func TestLedger_ReserveFailureKinds(t *testing.T) {
	store := newStore(t,
		domain.Product{ID: "assam", Name: "Assam", PriceMinor: 20000, Stock: 2, IsActive: true},
		domain.Product{ID: "retired", Name: "Old Blend", PriceMinor: 20000, Stock: 50, IsActive: false},
	)
	ledger := inventory.NewLedger()

	_ = store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		_, err := ledger.Reserve(ctx, repos.Products, "assam", 3)
		var stockErr *domain.StockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 2, stockErr.Available)
		assert.Equal(t, 3, stockErr.Requested)
		assert.Equal(t, "only 2 available for Assam", err.Error())

		_, err = ledger.Reserve(ctx, repos.Products, "retired", 1)
		var unavailable *domain.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, domain.UnavailableInactive, unavailable.Reason)
		assert.Equal(t, "Old Blend is no longer available", err.Error())

		_, err = ledger.Reserve(ctx, repos.Products, "ghost", 1)
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, domain.UnavailableMissing, unavailable.Reason)

		_, err = ledger.Reserve(ctx, repos.Products, "assam", 0)
		assert.ErrorIs(t, err, domain.ErrItemQtyInvalid)
		return nil
	})
	assert.Equal(t, 2, stockOf(t, store, "assam"))
}

func TestLedger_ReserveAllRollsBackWithTransaction(t *testing.T) {
	store := newStore(t,
		domain.Product{ID: "a", Name: "A", PriceMinor: 100, Stock: 5, IsActive: true},
		domain.Product{ID: "b", Name: "B", PriceMinor: 100, Stock: 1, IsActive: true},
	)
	ledger := inventory.NewLedger()

	err := store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		_, err := ledger.ReserveAll(ctx, repos.Products, []inventory.Line{
			{ProductID: "a", Quantity: 2},
			{ProductID: "b", Quantity: 2},
		})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, stockOf(t, store, "a"))
	assert.Equal(t, 1, stockOf(t, store, "b"))
}

func TestLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	store := newStore(t, domain.Product{ID: "matcha", Name: "Matcha", PriceMinor: 90000, Stock: 5, IsActive: true})
	ledger := inventory.NewLedger()

	const buyers = 2
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
				_, err := ledger.Reserve(ctx, repos.Products, "matcha", 3)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrInsufficientStock):
				shortages++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, shortages)
	assert.Equal(t, 2, stockOf(t, store, "matcha"))
}

func TestLedger_ReleaseAll(t *testing.T) {
	store := newStore(t, domain.Product{ID: "a", Name: "A", PriceMinor: 100, Stock: 0, IsActive: false})
	ledger := inventory.NewLedger()

	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		return ledger.ReleaseAll(ctx, repos.Products, []domain.OrderItem{{ProductID: "a", Quantity: 2}, {ProductID: "a", Quantity: 1}})
	}))
	assert.Equal(t, 3, stockOf(t, store, "a"))
}

func TestMergeLines(t *testing.T) {
	merged := inventory.MergeLines([]inventory.Line{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
	})
	assert.Equal(t, []inventory.Line{{ProductID: "b", Quantity: 4}, {ProductID: "a", Quantity: 2}}, merged)
}
