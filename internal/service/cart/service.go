// Package cart управляет корзинами покупателей. Остатки проверяются оптимистично:
// окончательно склад резервирует только оформление заказа.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

// Item - позиция корзины с текущими данными товара.
type Item struct {
	ProductID      string
	Name           string
	Quantity       int
	UnitPriceMinor int64
	InStock        int
}

// View - корзина с ценами и итогами по текущему каталогу.
type View struct {
	UserID string
	Items  []Item
	Totals domain.Totals
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service - операции с корзиной. Одна корзина на пользователя.
type Service struct {
	tx      domain.TxManager
	pricing domain.PricingRules
	logger  *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(tx domain.TxManager, pricing domain.PricingRules, options ...Option) *Service {
	s := &Service{tx: tx, pricing: pricing}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "cart")
	}
	return s
}

// Get возвращает корзину, убирая из неё снятые с продажи и удалённые товары.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	return s.mutate(ctx, userID, func(context.Context, domain.Repositories, *domain.Cart) error {
		return nil
	})
}

// AddItem добавляет товар, складывая количество с уже лежащим в корзине.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (View, error) {
	productID = strings.TrimSpace(productID)
	if qty <= 0 {
		return View{}, domain.ErrItemQtyInvalid
	}
	return s.mutate(ctx, userID, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		total := cart.Quantity(productID) + qty
		if err := checkAvailable(ctx, repos.Products, productID, total); err != nil {
			return err
		}
		cart.Set(productID, total)
		return nil
	})
}

// UpdateItem выставляет количество позиции. qty == 0 удаляет её.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, qty int) (View, error) {
	productID = strings.TrimSpace(productID)
	if qty < 0 {
		return View{}, domain.ErrItemQtyInvalid
	}
	return s.mutate(ctx, userID, func(ctx context.Context, repos domain.Repositories, cart *domain.Cart) error {
		if cart.Quantity(productID) == 0 {
			return domain.ErrCartItemNotFound
		}
		if qty > 0 {
			if err := checkAvailable(ctx, repos.Products, productID, qty); err != nil {
				return err
			}
		}
		cart.Set(productID, qty)
		return nil
	})
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (View, error) {
	productID = strings.TrimSpace(productID)
	return s.mutate(ctx, userID, func(_ context.Context, _ domain.Repositories, cart *domain.Cart) error {
		if !cart.Remove(productID) {
			return domain.ErrCartItemNotFound
		}
		return nil
	})
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrUserRequired
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Carts.Clear(ctx, userID)
	})
}

// mutate загружает корзину, применяет change, чистит недоступные позиции и сохраняет,
// если содержимое изменилось.
func (s *Service) mutate(ctx context.Context, userID string, change func(context.Context, domain.Repositories, *domain.Cart) error) (View, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return View{}, domain.ErrUserRequired
	}

	var view View
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		before := cart.Clone()

		if err := change(ctx, repos, &cart); err != nil {
			return err
		}

		view, err = s.build(ctx, repos, &cart)
		if err != nil {
			return err
		}
		if sameItems(before.Items, cart.Items) {
			return nil
		}
		if err := repos.Carts.Save(ctx, cart); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}

// build собирает представление корзины и выкидывает позиции с недоступными товарами.
func (s *Service) build(ctx context.Context, repos domain.Repositories, cart *domain.Cart) (View, error) {
	view := View{UserID: cart.UserID, Items: make([]Item, 0, len(cart.Items))}
	kept := cart.Items[:0:0]
	var subtotal int64

	for _, line := range cart.Items {
		product, err := repos.Products.Get(ctx, line.ProductID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			s.logger.WithField("product_id", line.ProductID).Debug("dropping missing product from cart")
			continue
		case err != nil:
			return View{}, fmt.Errorf("load product %s: %w", line.ProductID, err)
		case !product.IsActive:
			s.logger.WithField("product_id", line.ProductID).Debug("dropping inactive product from cart")
			continue
		}

		kept = append(kept, line)
		view.Items = append(view.Items, Item{
			ProductID:      product.ID,
			Name:           product.Name,
			Quantity:       line.Quantity,
			UnitPriceMinor: product.PriceMinor,
			InStock:        product.Stock,
		})
		subtotal += int64(line.Quantity) * product.PriceMinor
	}

	cart.Items = kept
	if len(view.Items) > 0 {
		view.Totals = s.pricing.ComputeFromSubtotal(subtotal)
	}
	return view, nil
}

// checkAvailable проверяет, что товар продаётся и на складе есть qty единиц.
func checkAvailable(ctx context.Context, products domain.ProductRepository, productID string, qty int) error {
	if productID == "" {
		return &domain.UnavailableError{ProductID: productID, Reason: domain.UnavailableMissing}
	}
	product, err := products.Get(ctx, productID)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return &domain.UnavailableError{ProductID: productID, Reason: domain.UnavailableMissing}
	case err != nil:
		return fmt.Errorf("load product %s: %w", productID, err)
	case !product.IsActive:
		return &domain.UnavailableError{ProductID: productID, Name: product.Name, Reason: domain.UnavailableInactive}
	case product.Stock < qty:
		return &domain.StockError{ProductID: productID, Name: product.Name, Available: product.Stock, Requested: qty}
	}
	return nil
}

func sameItems(a, b []domain.CartItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
