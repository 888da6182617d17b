package domain

import (
	"github.com/shopspring/decimal"
)

const (
	// DefaultCurrency - валюта витрины.
	DefaultCurrency = "INR"
	// MinorUnitsPerMajor - пайсов в рупии.
	MinorUnitsPerMajor = 100
)

// Totals - итоги заказа в пайсах. Считаются один раз при создании.
type Totals struct {
	SubtotalMinor int64
	// TaxBasisPoints - ставка GST в сотых долях процента (500 = 5%).
	TaxBasisPoints int64
	TaxMinor       int64
	DeliveryMinor  int64
	TotalMinor     int64
}

// Consistent проверяет total = subtotal + tax + delivery.
func (t Totals) Consistent() bool {
	return t.TotalMinor == t.SubtotalMinor+t.TaxMinor+t.DeliveryMinor
}

// PricingRules задаёт налог и стоимость доставки.
type PricingRules struct {
	TaxPercent            decimal.Decimal
	DeliveryChargeMinor   int64
	FreeDeliveryFromMinor int64
}

// DefaultPricingRules: GST 5%, доставка 50 ₹ для заказов дешевле 600 ₹.
func DefaultPricingRules() PricingRules {
	return PricingRules{
		TaxPercent:            decimal.NewFromInt(5),
		DeliveryChargeMinor:   50 * MinorUnitsPerMajor,
		FreeDeliveryFromMinor: 600 * MinorUnitsPerMajor,
	}
}

// Compute рассчитывает итоги для набора позиций.
func (r PricingRules) Compute(items []OrderItem) Totals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotalMinor()
	}
	return r.ComputeFromSubtotal(subtotal)
}

// ComputeFromSubtotal применяет налог (округление half-up до пайса) и доставку.
func (r PricingRules) ComputeFromSubtotal(subtotalMinor int64) Totals {
	tax := decimal.NewFromInt(subtotalMinor).
		Mul(r.TaxPercent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	var delivery int64
	if subtotalMinor < r.FreeDeliveryFromMinor {
		delivery = r.DeliveryChargeMinor
	}

	return Totals{
		SubtotalMinor:  subtotalMinor,
		TaxBasisPoints: r.TaxPercent.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		TaxMinor:       tax,
		DeliveryMinor:  delivery,
		TotalMinor:     subtotalMinor + tax + delivery,
	}
}

// WithinTolerance сравнивает две суммы с допуском в пайсах.
func WithinTolerance(a, b, toleranceMinor int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= toleranceMinor
}

// MinorFromMajor переводит сумму в рупиях в пайсы с округлением half-up.
func MinorFromMajor(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrAmountInvalid
	}
	return amount.Mul(decimal.NewFromInt(MinorUnitsPerMajor)).Round(0).IntPart(), nil
}

// FormatMinor форматирует пайсы как сумму в рупиях с двумя знаками.
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
