package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type InventoryRepo struct{ db *sqlx.DB }

func NewInventoryRepo(db *sqlx.DB) *InventoryRepo { return &InventoryRepo{db: db} }

// InventoryRow is a stock line for the inventory overview.
type InventoryRow struct {
	ProductID int64  `db:"id" json:"productId"`
	SKU       string `db:"sku" json:"sku"`
	Name      string `db:"name" json:"name"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

// ListAll returns stock for all active products.
func (r *InventoryRepo) ListAll(ctx context.Context) ([]InventoryRow, error) {
	rows := []InventoryRow{}
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, sku, name, quantity
		FROM products
		WHERE is_active = ?
		ORDER BY name, sku
	`), true)
	return rows, err
}

// Qty returns current stock for an active product.
func (r *InventoryRepo) Qty(ctx context.Context, productID int64) (int, error) {
	var qty int
	err := r.db.GetContext(ctx, &qty, r.db.Rebind(`
		SELECT quantity FROM products WHERE id = ? AND is_active = ?
	`), productID, true)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return qty, err
}

// Adjust applies delta to an active product's stock and returns the new
// quantity. A delta that would take stock below zero matches no row and
// yields a StockShortageError.
func (r *InventoryRepo) Adjust(ctx context.Context, productID int64, delta int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if delta < 0 {
		if err := decrement(ctx, tx, productID, -delta); err != nil {
			return 0, err
		}
	} else {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE products SET quantity = quantity + ?, updated_at = ?
			WHERE id = ? AND is_active = ?
		`), delta, time.Now().UTC(), productID, true)
		if err != nil {
			return 0, err
		}
		if err := requireAffected(res); err != nil {
			return 0, err
		}
	}

	var qty int
	if err := tx.GetContext(ctx, &qty, tx.Rebind(`SELECT quantity FROM products WHERE id = ?`), productID); err != nil {
		return 0, err
	}
	return qty, tx.Commit()
}

// decrement atomically subtracts "by" units if enough stock exists. The
// affected-row count is the guard; concurrent callers cannot both succeed
// past the available quantity.
func decrement(ctx context.Context, tx *sqlx.Tx, productID int64, by int) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE products
		SET quantity = quantity - ?, updated_at = ?
		WHERE id = ? AND is_active = ? AND quantity >= ?
	`), by, time.Now().UTC(), productID, true, by)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var available int
	err = tx.GetContext(ctx, &available, tx.Rebind(`
		SELECT quantity FROM products WHERE id = ? AND is_active = ?
	`), productID, true)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return &StockShortageError{ProductID: productID, Requested: by, Available: available}
}
