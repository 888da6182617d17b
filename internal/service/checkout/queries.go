package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/inventory"
)

// defaultListLimit ограничивает историю заказов пользователя.
const defaultListLimit = 50

// GatewayOrderResult - данные для запуска платёжного виджета на клиенте.
type GatewayOrderResult struct {
	GatewayOrderID string
	AmountMinor    int64
	Currency       string
	KeyID          string
}

// CreateGatewayOrder заводит заказ в платёжном шлюзе на сумму, которую клиент будет оплачивать.
func (s *Service) CreateGatewayOrder(ctx context.Context, userID string, amountMinor int64) (GatewayOrderResult, error) {
	if strings.TrimSpace(userID) == "" {
		return GatewayOrderResult{}, domain.ErrUserRequired
	}
	if amountMinor <= 0 {
		return GatewayOrderResult{}, domain.ErrAmountInvalid
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	gatewayOrder, err := s.gateway.CreateOrder(ctx, amountMinor, domain.DefaultCurrency, receipt)
	if err != nil {
		return GatewayOrderResult{}, fmt.Errorf("create gateway order: %w", err)
	}

	s.logger.WithField("user_id", userID).
		WithField("gateway_order_id", gatewayOrder.ID).
		Debug("gateway order created")

	return GatewayOrderResult{
		GatewayOrderID: gatewayOrder.ID,
		AmountMinor:    gatewayOrder.AmountMinor,
		Currency:       gatewayOrder.Currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

// Quote - расчёт стоимости корзины по текущим ценам.
type Quote struct {
	Items  []domain.OrderItem
	Totals domain.Totals
}

// Quote считает итоги по текущим ценам без резервирования.
// Нехватка товара возвращается сразу, чтобы клиент не платил за то, чего нет.
func (s *Service) Quote(ctx context.Context, lines []inventory.Line) (Quote, error) {
	if err := validateLines(lines); err != nil {
		return Quote{}, err
	}
	return s.price(ctx, inventory.MergeLines(lines), true)
}

// validateLines проверяет строки до слияния: иначе отрицательное количество
// погасилось бы положительным для того же товара.
func validateLines(lines []inventory.Line) error {
	if len(lines) == 0 {
		return domain.ErrItemsRequired
	}
	for _, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" || line.Quantity <= 0 {
			return domain.ErrItemQtyInvalid
		}
	}
	return nil
}

func (s *Service) price(ctx context.Context, lines []inventory.Line, checkStock bool) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, domain.ErrItemsRequired
	}

	var quote Quote
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		quote.Items = make([]domain.OrderItem, 0, len(lines))
		for _, line := range lines {
			if line.Quantity <= 0 {
				return domain.ErrItemQtyInvalid
			}
			product, err := repos.Products.Get(ctx, line.ProductID)
			switch {
			case errors.Is(err, domain.ErrProductNotFound):
				return &domain.UnavailableError{ProductID: line.ProductID, Reason: domain.UnavailableMissing}
			case err != nil:
				return fmt.Errorf("load product %s: %w", line.ProductID, err)
			case !product.IsActive:
				return &domain.UnavailableError{ProductID: product.ID, Name: product.Name, Reason: domain.UnavailableInactive}
			case checkStock && product.Stock < line.Quantity:
				return &domain.StockError{ProductID: product.ID, Name: product.Name, Available: product.Stock, Requested: line.Quantity}
			}
			quote.Items = append(quote.Items, domain.OrderItem{
				ProductID:      product.ID,
				Name:           product.Name,
				Quantity:       line.Quantity,
				UnitPriceMinor: product.PriceMinor,
			})
		}
		return nil
	})
	if err != nil {
		return Quote{}, err
	}

	quote.Totals = s.cfg.Pricing.Compute(quote.Items)
	return quote, nil
}

// GetOrder возвращает заказ. Покупатель видит только свои заказы, администратор - любые.
func (s *Service) GetOrder(ctx context.Context, orderID string, actor domain.User) (domain.Order, error) {
	var order domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		order, err = loadOwnedOrder(ctx, repos, orderID, actor)
		return err
	})
	return order, err
}

// ListOrders возвращает последние заказы пользователя, новые первыми.
func (s *Service) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUserRequired
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	var orders []domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		orders, err = repos.Orders.ListByUser(ctx, userID, limit)
		return err
	})
	return orders, err
}

// Timeline возвращает события жизненного цикла заказа.
func (s *Service) Timeline(ctx context.Context, orderID string, actor domain.User) ([]domain.TimelineEvent, error) {
	var events []domain.TimelineEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := loadOwnedOrder(ctx, repos, orderID, actor); err != nil {
			return err
		}
		var err error
		events, err = repos.Timeline.List(ctx, orderID)
		return err
	})
	return events, err
}

func loadOwnedOrder(ctx context.Context, repos domain.Repositories, orderID string, actor domain.User) (domain.Order, error) {
	order, err := repos.Orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.IsAdmin() && order.UserID != actor.ID {
		// Чужой заказ неотличим от несуществующего.
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}
