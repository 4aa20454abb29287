package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const keyGlobalTaxRate = "global_tax_rate"

type SettingsRepo struct{ db *sqlx.DB }

func NewSettingsRepo(db *sqlx.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// GlobalTaxRate returns the shop sales tax percentage, or fallback when unset.
func (r *SettingsRepo) GlobalTaxRate(ctx context.Context, fallback decimal.Decimal) (decimal.Decimal, error) {
	var raw string
	err := r.db.GetContext(ctx, &raw, r.db.Rebind(`SELECT value FROM settings WHERE key = ?`), keyGlobalTaxRate)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("stored tax rate %q: %w", raw, err)
	}
	return rate, nil
}

func (r *SettingsRepo) SetGlobalTaxRate(ctx context.Context, rate decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO settings(key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`), keyGlobalTaxRate, rate.String(), time.Now().UTC())
	return err
}
