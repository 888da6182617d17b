package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

type cartRepository struct {
	st *state
}

func (r *cartRepository) Get(_ context.Context, userID string) (domain.Cart, error) {
	cart, ok := r.st.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	return cart.Clone(), nil
}

func (r *cartRepository) Save(_ context.Context, cart domain.Cart) error {
	if cart.UserID == "" {
		return domain.ErrUserRequired
	}
	cart.UpdatedAt = time.Now().UTC()
	r.st.carts[cart.UserID] = cart.Clone()
	return nil
}

func (r *cartRepository) Clear(_ context.Context, userID string) error {
	cart, ok := r.st.carts[userID]
	if !ok {
		return nil
	}
	cart.Items = nil
	cart.UpdatedAt = time.Now().UTC()
	r.st.carts[userID] = cart
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
