package pricing

import "github.com/shopspring/decimal"

// Line describes a normalized line item used for totals calculation.
type Line struct {
	Quantity   int
	UnitPrice  decimal.Decimal
	PerItemTax decimal.Decimal
	// Taxable lines contribute to the global sales tax base.
	Taxable bool
}

// Total returns unitPrice x quantity, before any tax.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals aggregates computed pricing components. Values are unrounded; call
// Rounded before persisting or presenting them.
type Totals struct {
	Subtotal        decimal.Decimal
	PerItemTaxTotal decimal.Decimal
	TaxableSubtotal decimal.Decimal
	TaxableAmount   decimal.Decimal
	GlobalTaxRate   decimal.Decimal
	GlobalTaxAmount decimal.Decimal
	Discount        decimal.Decimal
	LaborCost       decimal.Decimal
	GrandTotal      decimal.Decimal
}

// Compute derives sale totals from normalized lines and order-level
// adjustments. globalTaxRate is a percentage (9.5 means 9.5%).
//
// Global tax applies to taxableSubtotal + laborCost - discount, but only when
// at least one taxable line has a positive total; a cart made only of
// non-taxable lines pays no global tax, labor included. Discount and labor
// are not clamped, so totals may go negative.
func Compute(lines []Line, discount, laborCost, globalTaxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	perItemTax := decimal.Zero
	taxableSubtotal := decimal.Zero
	for _, l := range lines {
		lineTotal := l.Total()
		subtotal = subtotal.Add(lineTotal)
		perItemTax = perItemTax.Add(l.PerItemTax.Mul(decimal.NewFromInt(int64(l.Quantity))))
		if l.Taxable {
			taxableSubtotal = taxableSubtotal.Add(lineTotal)
		}
	}

	taxable := decimal.Zero
	if taxableSubtotal.IsPositive() {
		taxable = taxableSubtotal.Add(laborCost).Sub(discount)
	}
	tax := taxable.Mul(globalTaxRate).Shift(-2)

	return Totals{
		Subtotal:        subtotal,
		PerItemTaxTotal: perItemTax,
		TaxableSubtotal: taxableSubtotal,
		TaxableAmount:   taxable,
		GlobalTaxRate:   globalTaxRate,
		GlobalTaxAmount: tax,
		Discount:        discount,
		LaborCost:       laborCost,
		GrandTotal:      subtotal.Add(laborCost).Sub(discount).Add(tax).Add(perItemTax),
	}
}

// Rounded returns a copy with every currency component rounded to cents.
// The tax rate is kept as given.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:        Round(t.Subtotal),
		PerItemTaxTotal: Round(t.PerItemTaxTotal),
		TaxableSubtotal: Round(t.TaxableSubtotal),
		TaxableAmount:   Round(t.TaxableAmount),
		GlobalTaxRate:   t.GlobalTaxRate,
		GlobalTaxAmount: Round(t.GlobalTaxAmount),
		Discount:        Round(t.Discount),
		LaborCost:       Round(t.LaborCost),
		GrandTotal:      Round(t.GrandTotal),
	}
}

// Round rounds a currency amount to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders a currency amount with exactly two decimal places.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
