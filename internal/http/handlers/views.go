package handlers

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"tirepos/internal/domain"
	"tirepos/internal/pricing"
	"tirepos/internal/services"
)

// amount accepts a JSON string or number and keeps its literal text so no
// float conversion happens on the way in.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = amount(n.String())
	return nil
}

type saleItemView struct {
	ID          int64  `json:"id,omitempty"`
	ProductID   *int64 `json:"productId"`
	ProductName string `json:"productName"`
	ProductSKU  string `json:"productSku"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	PerItemTax  string `json:"perItemTax"`
	LineTotal   string `json:"lineTotal"`
	IsTaxable   bool   `json:"isTaxable"`
}

type saleView struct {
	ID              int64          `json:"id"`
	InvoiceNumber   string         `json:"invoiceNumber"`
	CustomerName    string         `json:"customerName"`
	CustomerPhone   string         `json:"customerPhone"`
	CustomerEmail   string         `json:"customerEmail"`
	VehicleMake     string         `json:"vehicleMake"`
	VehicleModel    string         `json:"vehicleModel"`
	VehicleYear     string         `json:"vehicleYear"`
	Notes           string         `json:"notes"`
	Subtotal        string         `json:"subtotal"`
	GlobalTaxRate   string         `json:"globalTaxRate"`
	GlobalTaxAmount string         `json:"globalTaxAmount"`
	PerItemTaxTotal string         `json:"perItemTaxTotal"`
	Discount        string         `json:"discount"`
	LaborCost       string         `json:"laborCost"`
	GrandTotal      string         `json:"grandTotal"`
	PaymentMethod   string         `json:"paymentMethod"`
	PaymentStatus   string         `json:"paymentStatus"`
	SaleDate        time.Time      `json:"saleDate"`
	Items           []saleItemView `json:"items,omitempty"`
}

func toSaleView(s domain.Sale) saleView {
	v := saleView{
		ID:              s.ID,
		InvoiceNumber:   s.InvoiceNumber,
		CustomerName:    s.CustomerName,
		CustomerPhone:   s.CustomerPhone,
		CustomerEmail:   s.CustomerEmail,
		VehicleMake:     s.VehicleMake,
		VehicleModel:    s.VehicleModel,
		VehicleYear:     s.VehicleYear,
		Notes:           s.Notes,
		Subtotal:        pricing.Format(s.Subtotal),
		GlobalTaxRate:   s.GlobalTaxRate.String(),
		GlobalTaxAmount: pricing.Format(s.GlobalTaxAmount),
		PerItemTaxTotal: pricing.Format(s.PerItemTaxTotal),
		Discount:        pricing.Format(s.Discount),
		LaborCost:       pricing.Format(s.LaborCost),
		GrandTotal:      pricing.Format(s.GrandTotal),
		PaymentMethod:   string(s.PaymentMethod),
		PaymentStatus:   string(s.PaymentStatus),
		SaleDate:        s.SaleDate,
	}
	for _, it := range s.Items {
		v.Items = append(v.Items, saleItemView{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			ProductSKU:  it.ProductSKU,
			Quantity:    it.Quantity,
			UnitPrice:   pricing.Format(it.UnitPrice),
			PerItemTax:  pricing.Format(it.PerItemTax),
			LineTotal:   pricing.Format(it.LineTotal),
			IsTaxable:   it.IsTaxable,
		})
	}
	return v
}

type totalsView struct {
	Subtotal        string `json:"subtotal"`
	PerItemTaxTotal string `json:"perItemTaxTotal"`
	TaxableSubtotal string `json:"taxableSubtotal"`
	TaxableAmount   string `json:"taxableAmount"`
	GlobalTaxRate   string `json:"globalTaxRate"`
	GlobalTaxAmount string `json:"globalTaxAmount"`
	Discount        string `json:"discount"`
	LaborCost       string `json:"laborCost"`
	GrandTotal      string `json:"grandTotal"`
}

type quoteView struct {
	Items  []saleItemView `json:"items"`
	Totals totalsView     `json:"totals"`
}

func toQuoteView(q services.Quote) quoteView {
	t := q.Totals
	v := quoteView{
		Items: make([]saleItemView, 0, len(q.Items)),
		Totals: totalsView{
			Subtotal:        pricing.Format(t.Subtotal),
			PerItemTaxTotal: pricing.Format(t.PerItemTaxTotal),
			TaxableSubtotal: pricing.Format(t.TaxableSubtotal),
			TaxableAmount:   pricing.Format(t.TaxableAmount),
			GlobalTaxRate:   t.GlobalTaxRate.String(),
			GlobalTaxAmount: pricing.Format(t.GlobalTaxAmount),
			Discount:        pricing.Format(t.Discount),
			LaborCost:       pricing.Format(t.LaborCost),
			GrandTotal:      pricing.Format(t.GrandTotal),
		},
	}
	for _, it := range q.Items {
		v.Items = append(v.Items, saleItemView{
			ProductID:   it.ProductID,
			ProductName: it.Name,
			ProductSKU:  it.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   pricing.Format(it.UnitPrice),
			PerItemTax:  pricing.Format(it.PerItemTax),
			LineTotal:   pricing.Format(it.Total()),
			IsTaxable:   it.Taxable,
		})
	}
	return v
}

type productView struct {
	ID           int64     `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	CategoryID   *int64    `json:"categoryId"`
	CategoryName string    `json:"categoryName,omitempty"`
	Condition    string    `json:"condition"`
	Quantity     int       `json:"quantity"`
	CostPrice    string    `json:"costPrice"`
	SellingPrice string    `json:"sellingPrice"`
	PerItemTax   string    `json:"perItemTax"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toProductView(p domain.Product) productView {
	return productView{
		ID:           p.ID,
		SKU:          p.SKU,
		Name:         p.Name,
		CategoryID:   p.CategoryID,
		CategoryName: p.CategoryName,
		Condition:    string(p.Condition),
		Quantity:     p.Quantity,
		CostPrice:    pricing.Format(p.CostPrice),
		SellingPrice: pricing.Format(p.SellingPrice),
		PerItemTax:   pricing.Format(p.PerItemTax),
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func parseMoney(a amount) decimal.Decimal {
	d, err := decimal.NewFromString(string(a))
	if err != nil {
		return decimal.Zero
	}
	return d
}
