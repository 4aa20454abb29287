package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentCheck PaymentMethod = "check"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCheck:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPaid || s == PaymentPending
}

// Customer holds the customer and vehicle snapshot recorded on a sale.
type Customer struct {
	CustomerName  string `db:"customer_name"`
	CustomerPhone string `db:"customer_phone"`
	CustomerEmail string `db:"customer_email"`
	VehicleMake   string `db:"vehicle_make"`
	VehicleModel  string `db:"vehicle_model"`
	VehicleYear   string `db:"vehicle_year"`
	Notes         string `db:"notes"`
}

// Sale is immutable once created except for customer and payment metadata.
type Sale struct {
	ID            int64  `db:"id"`
	InvoiceNumber string `db:"invoice_number"`
	Customer
	Subtotal        decimal.Decimal `db:"subtotal"`
	GlobalTaxRate   decimal.Decimal `db:"global_tax_rate"`
	GlobalTaxAmount decimal.Decimal `db:"global_tax_amount"`
	PerItemTaxTotal decimal.Decimal `db:"per_item_tax_total"`
	Discount        decimal.Decimal `db:"discount"`
	LaborCost       decimal.Decimal `db:"labor_cost"`
	GrandTotal      decimal.Decimal `db:"grand_total"`
	PaymentMethod   PaymentMethod   `db:"payment_method"`
	PaymentStatus   PaymentStatus   `db:"payment_status"`
	SaleDate        time.Time       `db:"sale_date"`

	Items []SaleItem `db:"-"`
}

// SaleItem is a value snapshot of a line at the time of sale. ProductID is
// nil for custom items.
type SaleItem struct {
	ID          int64           `db:"id"`
	SaleID      int64           `db:"sale_id"`
	ProductID   *int64          `db:"product_id"`
	ProductName string          `db:"product_name"`
	ProductSKU  string          `db:"product_sku"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	PerItemTax  decimal.Decimal `db:"per_item_tax"`
	LineTotal   decimal.Decimal `db:"line_total"`
	IsTaxable   bool            `db:"is_taxable"`
}
