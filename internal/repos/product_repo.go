package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tirepos/internal/domain"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

const productColumns = `
    p.id, p.sku, p.name, p.category_id, COALESCE(c.name,'') AS category_name,
    p.condition, p.quantity, p.cost_price, p.selling_price, p.per_item_tax,
    p.is_active, p.created_at, p.updated_at`

const productFrom = `
  FROM products p
  LEFT JOIN categories c ON c.id = p.category_id`

// ProductFilter narrows Search results. Zero values mean "any".
type ProductFilter struct {
	Q          string
	CategoryID int64
	Condition  domain.Condition
	Limit      int
	Offset     int
}

// GetActive returns an active product; inactive or missing rows yield ErrNotFound.
func (r *ProductRepo) GetActive(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT`+productColumns+productFrom+`
  WHERE p.id = ? AND p.is_active = ?`), id, true)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, ErrNotFound
	}
	return p, err
}

// Get returns a product regardless of its active flag.
func (r *ProductRepo) Get(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT`+productColumns+productFrom+`
  WHERE p.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, ErrNotFound
	}
	return p, err
}

func (r *ProductRepo) GetBySKU(ctx context.Context, sku string) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT`+productColumns+productFrom+`
  WHERE p.sku = ?`), sku)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, ErrNotFound
	}
	return p, err
}

// Search lists active products, newest first.
func (r *ProductRepo) Search(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	where := `p.is_active = ?`
	args := []any{true}
	if q := strings.ToLower(strings.TrimSpace(f.Q)); q != "" {
		where += ` AND (LOWER(p.name) LIKE ? OR LOWER(p.sku) LIKE ?)`
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	if f.CategoryID > 0 {
		where += ` AND p.category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Condition != "" {
		where += ` AND p.condition = ?`
		args = append(args, string(f.Condition))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, max(f.Offset, 0))

	query := `SELECT` + productColumns + productFrom + `
  WHERE ` + where + `
  ORDER BY p.created_at DESC, p.id DESC
  LIMIT ? OFFSET ?`

	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...)
	return out, err
}

// Create inserts a product and returns it with its id and timestamps.
func (r *ProductRepo) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
	  INSERT INTO products
	    (sku, name, category_id, condition, quantity, cost_price, selling_price, per_item_tax, is_active, created_at, updated_at)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	  RETURNING id
	`), p.SKU, p.Name, p.CategoryID, string(p.Condition), p.Quantity,
		p.CostPrice, p.SellingPrice, p.PerItemTax, p.IsActive, now, now).Scan(&p.ID)
	if isUniqueViolation(err) {
		return domain.Product{}, fmt.Errorf("sku %s: %w", p.SKU, ErrDuplicate)
	}
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// Update overwrites the editable catalog fields. Quantity is changed through
// InventoryRepo so stock moves stay conditional.
func (r *ProductRepo) Update(ctx context.Context, p domain.Product) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  UPDATE products
	  SET sku = ?, name = ?, category_id = ?, condition = ?, cost_price = ?,
	      selling_price = ?, per_item_tax = ?, updated_at = ?
	  WHERE id = ? AND is_active = ?
	`), p.SKU, p.Name, p.CategoryID, string(p.Condition), p.CostPrice,
		p.SellingPrice, p.PerItemTax, time.Now().UTC(), p.ID, true)
	if isUniqueViolation(err) {
		return fmt.Errorf("sku %s: %w", p.SKU, ErrDuplicate)
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Deactivate soft-deletes a product. Sale history keeps its snapshots.
func (r *ProductRepo) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  UPDATE products SET is_active = ?, updated_at = ? WHERE id = ? AND is_active = ?
	`), false, time.Now().UTC(), id, true)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// UpsertBySKU inserts a product or, when the SKU exists, refreshes its catalog
// fields and sets its quantity. Reactivates soft-deleted rows.
func (r *ProductRepo) UpsertBySKU(ctx context.Context, p domain.Product) (domain.Product, bool, error) {
	existing, err := r.GetBySKU(ctx, p.SKU)
	if errors.Is(err, ErrNotFound) {
		p.IsActive = true
		created, err := r.Create(ctx, p)
		return created, true, err
	}
	if err != nil {
		return domain.Product{}, false, err
	}
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
	  UPDATE products
	  SET name = ?, category_id = ?, condition = ?, quantity = ?, cost_price = ?,
	      selling_price = ?, per_item_tax = ?, is_active = ?, updated_at = ?
	  WHERE id = ?
	`), p.Name, p.CategoryID, string(p.Condition), p.Quantity, p.CostPrice,
		p.SellingPrice, p.PerItemTax, true, now, existing.ID)
	if err != nil {
		return domain.Product{}, false, err
	}
	p.ID = existing.ID
	p.IsActive = true
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = now
	return p, false, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
