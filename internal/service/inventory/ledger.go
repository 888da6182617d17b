package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

var reservationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teashop_stock_reservation_failures_total",
	Help: "Total number of rejected stock reservations grouped by reason.",
}, []string{"reason"})

// Line - запрошенная позиция: товар и количество.
type Line struct {
	ProductID string
	Quantity  int
}

// Ledger резервирует и возвращает складские остатки.
// Работает поверх ProductRepository текущей транзакции: откат транзакции отменяет резерв.
type Ledger struct{}

// NewLedger создаёт складской реестр.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve атомарно списывает qty единиц товара и возвращает снимок позиции.
// Если условное списание не сработало, перечитывает товар, чтобы вернуть точную причину.
func (l *Ledger) Reserve(ctx context.Context, products domain.ProductRepository, productID string, qty int) (domain.OrderItem, error) {
	if qty <= 0 {
		return domain.OrderItem{}, domain.ErrItemQtyInvalid
	}

	product, ok, err := products.DecrementStock(ctx, productID, qty)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("reserve %s: %w", productID, err)
	}
	if ok {
		return domain.OrderItem{
			ProductID:      product.ID,
			Name:           product.Name,
			Quantity:       qty,
			UnitPriceMinor: product.PriceMinor,
		}, nil
	}

	current, err := products.Get(ctx, productID)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		reservationFailures.WithLabelValues(string(domain.UnavailableMissing)).Inc()
		return domain.OrderItem{}, &domain.UnavailableError{ProductID: productID, Reason: domain.UnavailableMissing}
	case err != nil:
		return domain.OrderItem{}, fmt.Errorf("reread product %s: %w", productID, err)
	case !current.IsActive:
		reservationFailures.WithLabelValues(string(domain.UnavailableInactive)).Inc()
		return domain.OrderItem{}, &domain.UnavailableError{ProductID: productID, Name: current.Name, Reason: domain.UnavailableInactive}
	default:
		reservationFailures.WithLabelValues("insufficient").Inc()
		return domain.OrderItem{}, &domain.StockError{
			ProductID: productID,
			Name:      current.Name,
			Available: current.Stock,
			Requested: qty,
		}
	}
}

// ReserveAll резервирует все позиции по порядку и останавливается на первой ошибке.
// Уже сделанные списания откатывает вызывающая транзакция.
func (l *Ledger) ReserveAll(ctx context.Context, products domain.ProductRepository, lines []Line) ([]domain.OrderItem, error) {
	if len(lines) == 0 {
		return nil, domain.ErrItemsRequired
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		item, err := l.Reserve(ctx, products, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Release возвращает qty единиц товара на склад.
func (l *Ledger) Release(ctx context.Context, products domain.ProductRepository, productID string, qty int) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}
	if err := products.IncrementStock(ctx, productID, qty); err != nil {
		return fmt.Errorf("release %s: %w", productID, err)
	}
	return nil
}

// ReleaseAll возвращает на склад все позиции заказа.
func (l *Ledger) ReleaseAll(ctx context.Context, products domain.ProductRepository, items []domain.OrderItem) error {
	for _, item := range items {
		if err := l.Release(ctx, products, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// MergeLines складывает количества повторяющихся товаров, сохраняя порядок первого появления.
func MergeLines(lines []Line) []Line {
	index := make(map[string]int, len(lines))
	merged := make([]Line, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}
