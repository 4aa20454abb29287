package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tirepos/internal/domain"
	"tirepos/internal/pricing"
	"tirepos/internal/repos"
)

// ProductLookup resolves active catalog products.
type ProductLookup interface {
	GetActive(ctx context.Context, id int64) (domain.Product, error)
}

// CategoryLookup resolves category names for tax resolution.
type CategoryLookup interface {
	Get(ctx context.Context, id int64) (domain.Category, error)
}

// CartEntry is one caller-supplied cart line: a CatalogEntry or a CustomEntry.
type CartEntry interface {
	cartEntry()
}

// CatalogEntry references a catalog product. UnitPrice is the price charged,
// which may differ from the catalog selling price. A blank PerItemTax is
// resolved from the catalog.
type CatalogEntry struct {
	ProductID  int64
	Quantity   int
	UnitPrice  string
	PerItemTax string
}

// CustomEntry is an ad-hoc line (service, fee) with no catalog product. It
// pays global tax only when IsTaxable is set, and never carries per-item tax.
type CustomEntry struct {
	Name      string
	Quantity  int
	UnitPrice string
	IsTaxable bool
}

func (CatalogEntry) cartEntry() {}
func (CustomEntry) cartEntry()  {}

// LineItem is a validated cart line with resolved prices and taxes.
type LineItem struct {
	ProductID  *int64
	Name       string
	SKU        string
	Quantity   int
	UnitPrice  decimal.Decimal
	PerItemTax decimal.Decimal
	Taxable    bool
}

func (l LineItem) Line() pricing.Line {
	return pricing.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, PerItemTax: l.PerItemTax, Taxable: l.Taxable}
}

func (l LineItem) Total() decimal.Decimal { return l.Line().Total() }

// Normalizer validates cart entries against the catalog and resolves per-item tax.
type Normalizer struct {
	Products   ProductLookup
	Categories CategoryLookup
	TireFee    decimal.Decimal
}

func NewNormalizer(products ProductLookup, categories CategoryLookup, tireFee decimal.Decimal) *Normalizer {
	return &Normalizer{Products: products, Categories: categories, TireFee: tireFee}
}

// Normalize turns raw entries into line items, preserving order. It reads the
// catalog but writes nothing. Requested quantities for the same product are
// summed before the stock check.
func (n *Normalizer) Normalize(ctx context.Context, entries []CartEntry) ([]LineItem, error) {
	if len(entries) == 0 {
		return nil, invalid("items", "at least one item is required")
	}

	items := make([]LineItem, 0, len(entries))
	requested := map[int64]int{}
	products := map[int64]domain.Product{}
	categories := map[int64]string{}

	for i, e := range entries {
		field := fmt.Sprintf("items[%d]", i)
		switch e := e.(type) {
		case CatalogEntry:
			it, p, err := n.catalogLine(ctx, field, e, products, categories)
			if err != nil {
				return nil, err
			}
			requested[p.ID] += it.Quantity
			if requested[p.ID] > p.Quantity {
				return nil, &InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   requested[p.ID],
					Available:   p.Quantity,
				}
			}
			items = append(items, it)
		case CustomEntry:
			it, err := customLine(field, e)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		default:
			return nil, invalid(field, "unsupported item type %T", e)
		}
	}
	return items, nil
}

func (n *Normalizer) catalogLine(ctx context.Context, field string, e CatalogEntry, products map[int64]domain.Product, categories map[int64]string) (LineItem, domain.Product, error) {
	if e.ProductID <= 0 {
		return LineItem{}, domain.Product{}, invalid(field+".productId", "must be a positive id")
	}
	if e.Quantity < 1 {
		return LineItem{}, domain.Product{}, invalid(field+".quantity", "must be at least 1")
	}
	price, err := parseAmount(field+".unitPrice", e.UnitPrice)
	if err != nil {
		return LineItem{}, domain.Product{}, err
	}

	p, ok := products[e.ProductID]
	if !ok {
		p, err = n.Products.GetActive(ctx, e.ProductID)
		if errors.Is(err, repos.ErrNotFound) {
			return LineItem{}, domain.Product{}, &ProductNotFoundError{ProductID: e.ProductID}
		}
		if err != nil {
			return LineItem{}, domain.Product{}, fmt.Errorf("load product %d: %w", e.ProductID, err)
		}
		products[p.ID] = p
	}

	var tax decimal.Decimal
	if strings.TrimSpace(e.PerItemTax) != "" {
		tax = optionalAmount(e.PerItemTax)
		if tax.IsNegative() {
			return LineItem{}, domain.Product{}, invalid(field+".perItemTax", "must not be negative")
		}
	} else {
		category, err := n.categoryName(ctx, p, categories)
		if err != nil {
			return LineItem{}, domain.Product{}, err
		}
		tax = pricing.ResolvePerItemTax(p, category, n.TireFee)
	}

	id := p.ID
	return LineItem{
		ProductID:  &id,
		Name:       p.Name,
		SKU:        p.SKU,
		Quantity:   e.Quantity,
		UnitPrice:  price,
		PerItemTax: tax,
		Taxable:    true,
	}, p, nil
}

func (n *Normalizer) categoryName(ctx context.Context, p domain.Product, cache map[int64]string) (string, error) {
	if p.CategoryID == nil {
		return "", nil
	}
	if name, ok := cache[*p.CategoryID]; ok {
		return name, nil
	}
	c, err := n.Categories.Get(ctx, *p.CategoryID)
	if errors.Is(err, repos.ErrNotFound) {
		cache[*p.CategoryID] = ""
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load category %d: %w", *p.CategoryID, err)
	}
	cache[c.ID] = c.Name
	return c.Name, nil
}

func customLine(field string, e CustomEntry) (LineItem, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return LineItem{}, invalid(field+".name", "is required for custom items")
	}
	if e.Quantity < 1 {
		return LineItem{}, invalid(field+".quantity", "must be at least 1")
	}
	price, err := parseAmount(field+".unitPrice", e.UnitPrice)
	if err != nil {
		return LineItem{}, err
	}
	return LineItem{
		Name:       name,
		SKU:        "CUSTOM",
		Quantity:   e.Quantity,
		UnitPrice:  price,
		PerItemTax: decimal.Zero,
		Taxable:    e.IsTaxable,
	}, nil
}

// parseAmount parses a required non-negative currency string.
func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, invalid(field, "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid(field, "%q is not a decimal amount", raw)
	}
	if d.IsNegative() {
		return decimal.Zero, invalid(field, "must not be negative")
	}
	return d, nil
}

// optionalAmount parses an optional amount; blank or unparsable input is zero.
func optionalAmount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}
