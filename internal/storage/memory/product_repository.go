package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

type productRepository struct {
	st *state
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	product, ok := r.st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepository) Save(_ context.Context, product domain.Product) error {
	if errs := product.Validate(); len(errs) > 0 {
		return errs[0]
	}
	now := time.Now().UTC()
	if existing, ok := r.st.products[product.ID]; ok {
		product.CreatedAt = existing.CreatedAt
	} else if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	r.st.products[product.ID] = product
	return nil
}

// DecrementStock повторяет семантику UPDATE ... WHERE stock >= qty AND is_active.
func (r *productRepository) DecrementStock(_ context.Context, id string, qty int) (domain.Product, bool, error) {
	product, ok := r.st.products[id]
	if !ok || !product.IsActive || product.Stock < qty {
		return domain.Product{}, false, nil
	}
	product.Stock -= qty
	product.UpdatedAt = time.Now().UTC()
	r.st.products[id] = product
	return product, true, nil
}

func (r *productRepository) IncrementStock(_ context.Context, id string, qty int) error {
	product, ok := r.st.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock += qty
	product.UpdatedAt = time.Now().UTC()
	r.st.products[id] = product
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
