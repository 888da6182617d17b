package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

type orderRepository struct {
	st *state
}

func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	if _, taken := r.st.orders[order.ID]; taken {
		return domain.ErrOrderVersionConflict
	}
	r.st.orders[order.ID] = order.Clone()
	return nil
}

func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	if order, ok := r.st.orders[id]; ok {
		return order.Clone(), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// ListByUser отдаёт заказы от новых к старым; limit <= 0 снимает ограничение.
func (r *orderRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	orders := []domain.Order{}
	for _, order := range r.st.orders {
		if order.UserID == userID {
			orders = append(orders, order.Clone())
		}
	}

	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// Save применяет optimistic locking: версия в order должна совпасть с сохранённой.
func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	stored, ok := r.st.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}

	order.Version = stored.Version + 1
	r.st.orders[order.ID] = order.Clone()
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
