package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Condition string

const (
	ConditionNew         Condition = "new"
	ConditionUsed        Condition = "used"
	ConditionRefurbished Condition = "refurbished"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionUsed, ConditionRefurbished:
		return true
	}
	return false
}

type Category struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

// Product is a catalog entry. Rows are never deleted; IsActive=false hides
// them from sales and listings.
type Product struct {
	ID           int64           `db:"id"`
	SKU          string          `db:"sku"`
	Name         string          `db:"name"`
	CategoryID   *int64          `db:"category_id"`
	CategoryName string          `db:"category_name"`
	Condition    Condition       `db:"condition"`
	Quantity     int             `db:"quantity"`
	CostPrice    decimal.Decimal `db:"cost_price"`
	SellingPrice decimal.Decimal `db:"selling_price"`
	PerItemTax   decimal.Decimal `db:"per_item_tax"`
	IsActive     bool            `db:"is_active"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

type Availability struct {
	Status string `json:"status"` // IN_STOCK | LOW_STOCK | OUT_OF_STOCK
	Qty    int    `json:"qty"`
}
