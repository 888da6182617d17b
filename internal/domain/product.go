package domain

import "time"

// Product - товар витрины. Остаток меняется только через складской реестр.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64
	Stock      int
	Category   string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет инварианты товара.
func (p *Product) Validate() []error {
	var errs []error
	if p.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrStockNegative)
	}
	return errs
}
