package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"tirepos/internal/domain"
)

// DefaultTireFee is the per-unit fee charged on new tires that carry no
// explicit per-item tax.
const DefaultTireFee = "1.75"

// DefaultGlobalTaxRate is the sales tax percentage used when the shop has not
// configured one.
const DefaultGlobalTaxRate = "9.5"

// TireFee returns DefaultTireFee as a decimal.
func TireFee() decimal.Decimal {
	return decimal.RequireFromString(DefaultTireFee)
}

// ResolvePerItemTax picks the per-unit tax for a catalog product when the cart
// entry did not supply one: the product's own positive per-item tax, else the
// tire fee for new products in a "tire" category, else zero.
func ResolvePerItemTax(p domain.Product, categoryName string, tireFee decimal.Decimal) decimal.Decimal {
	if p.PerItemTax.IsPositive() {
		return p.PerItemTax
	}
	if IsTireCategory(categoryName) && p.Condition == domain.ConditionNew {
		return tireFee
	}
	return decimal.Zero
}

// IsTireCategory reports whether a category name denotes tires.
func IsTireCategory(name string) bool {
	return strings.Contains(strings.ToLower(name), "tire")
}
