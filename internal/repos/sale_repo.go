package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"tirepos/internal/domain"
)

type SaleRepo struct{ db *sqlx.DB }

func NewSaleRepo(db *sqlx.DB) *SaleRepo { return &SaleRepo{db: db} }

const saleColumns = `
    id, invoice_number, customer_name, customer_phone, customer_email,
    vehicle_make, vehicle_model, vehicle_year, notes,
    subtotal, global_tax_rate, global_tax_amount, per_item_tax_total,
    discount, labor_cost, grand_total, payment_method, payment_status, sale_date`

// Create inserts the sale header, its item snapshots and decrements stock for
// catalog-backed items in one transaction. Nothing is kept on error.
//
// A colliding invoice number yields ErrDuplicate; a stock decrement that
// cannot be satisfied yields *StockShortageError.
func (r *SaleRepo) Create(ctx context.Context, s *domain.Sale) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var saleID int64
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
	  INSERT INTO sales
	    (invoice_number, customer_name, customer_phone, customer_email,
	     vehicle_make, vehicle_model, vehicle_year, notes,
	     subtotal, global_tax_rate, global_tax_amount, per_item_tax_total,
	     discount, labor_cost, grand_total, payment_method, payment_status, sale_date)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	  RETURNING id
	`), s.InvoiceNumber, s.CustomerName, s.CustomerPhone, s.CustomerEmail,
		s.VehicleMake, s.VehicleModel, s.VehicleYear, s.Notes,
		s.Subtotal, s.GlobalTaxRate, s.GlobalTaxAmount, s.PerItemTaxTotal,
		s.Discount, s.LaborCost, s.GrandTotal, string(s.PaymentMethod), string(s.PaymentStatus), s.SaleDate,
	).Scan(&saleID)
	if isUniqueViolation(err) {
		return fmt.Errorf("invoice %s: %w", s.InvoiceNumber, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	for i := range s.Items {
		it := &s.Items[i]
		it.SaleID = saleID
		err := tx.QueryRowxContext(ctx, tx.Rebind(`
		  INSERT INTO sale_items
		    (sale_id, product_id, product_name, product_sku, quantity, unit_price, per_item_tax, line_total, is_taxable)
		  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		  RETURNING id
		`), saleID, it.ProductID, it.ProductName, it.ProductSKU, it.Quantity,
			it.UnitPrice, it.PerItemTax, it.LineTotal, it.IsTaxable,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert sale item %q: %w", it.ProductName, err)
		}
	}

	for _, it := range s.Items {
		if it.ProductID == nil {
			continue
		}
		if err := decrement(ctx, tx, *it.ProductID, it.Quantity); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sale: %w", err)
	}
	s.ID = saleID
	return nil
}

// Get loads a sale and its items by invoice number.
func (r *SaleRepo) Get(ctx context.Context, invoice string) (domain.Sale, error) {
	var s domain.Sale
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`SELECT`+saleColumns+`
	  FROM sales WHERE invoice_number = ?`), invoice)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, ErrNotFound
	}
	if err != nil {
		return domain.Sale{}, err
	}
	s.Items = []domain.SaleItem{}
	err = r.db.SelectContext(ctx, &s.Items, r.db.Rebind(`
	  SELECT id, sale_id, product_id, product_name, product_sku, quantity,
	         unit_price, per_item_tax, line_total, is_taxable
	  FROM sale_items
	  WHERE sale_id = ?
	  ORDER BY id
	`), s.ID)
	if err != nil {
		return domain.Sale{}, err
	}
	return s, nil
}

// ListLatest returns sale headers, newest first. Items are not loaded.
func (r *SaleRepo) ListLatest(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []domain.Sale{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT`+saleColumns+`
	  FROM sales
	  ORDER BY sale_date DESC, id DESC
	  LIMIT ?`), limit)
	return out, err
}

// UpdateMeta rewrites customer and payment metadata. Totals are untouched.
func (r *SaleRepo) UpdateMeta(ctx context.Context, invoice string, c domain.Customer, method domain.PaymentMethod, status domain.PaymentStatus) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  UPDATE sales
	  SET customer_name = ?, customer_phone = ?, customer_email = ?,
	      vehicle_make = ?, vehicle_model = ?, vehicle_year = ?, notes = ?,
	      payment_method = ?, payment_status = ?
	  WHERE invoice_number = ?
	`), c.CustomerName, c.CustomerPhone, c.CustomerEmail,
		c.VehicleMake, c.VehicleModel, c.VehicleYear, c.Notes,
		string(method), string(status), invoice)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
