package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

type cartRepository struct {
	q querier
}

type cartItemJSON struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (r *cartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT items, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&raw, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	var stored []cartItemJSON
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart items: %w", err)
	}

	cart := domain.Cart{UserID: userID, UpdatedAt: updatedAt}
	for _, item := range stored {
		cart.Items = append(cart.Items, domain.CartItem(item))
	}
	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if cart.UserID == "" {
		return domain.ErrUserRequired
	}

	items := make([]cartItemJSON, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemJSON(item))
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (user_id, items, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id) DO UPDATE
		SET items = EXCLUDED.items,
		    updated_at = EXCLUDED.updated_at
	`, cart.UserID, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.q.ExecContext(ctx, `
		UPDATE carts
		SET items = '[]'::jsonb,
		    updated_at = $2
		WHERE user_id = $1
	`, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
