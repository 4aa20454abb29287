package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"tirepos/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// StockShortageError reports a conditional stock decrement that matched no
// row because the product lacked the requested quantity.
type StockShortageError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (need %d, have %d)", e.ProductID, e.Requested, e.Available)
}

// OpenDB connects and applies the schema. DSNs starting with postgres:// or
// postgresql:// use pgx; anything else is a SQLite path (":memory:" works).
func OpenDB(dsn string) (*sqlx.DB, error) {
	driver := "sqlite"
	if isPostgresDSN(dsn) {
		driver = "pgx"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// One connection serializes writers and keeps ":memory:" a single database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func isPostgresDSN(dsn string) bool {
	dsn = strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func isPostgres(db sqlx.ExtContext) bool {
	return db.DriverName() == "pgx"
}

// Migrate creates tables and indexes if they do not exist.
func Migrate(db *sqlx.DB) error {
	schema := sqliteSchema
	if isPostgres(db) {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const sqliteSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS categories(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name_nocase ON categories(LOWER(name));

-- Money is stored as decimal text to avoid REAL affinity.
CREATE TABLE IF NOT EXISTS products(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sku TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  category_id INTEGER NULL REFERENCES categories(id) ON DELETE SET NULL,
  condition TEXT NOT NULL CHECK (condition IN ('new','used','refurbished')),
  quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
  cost_price TEXT NOT NULL DEFAULT '0',
  selling_price TEXT NOT NULL DEFAULT '0',
  per_item_tax TEXT NOT NULL DEFAULT '0',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id);
CREATE INDEX IF NOT EXISTS idx_products_name     ON products(LOWER(name));
CREATE INDEX IF NOT EXISTS idx_products_active   ON products(is_active);

CREATE TABLE IF NOT EXISTS settings(
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sales(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_number TEXT NOT NULL UNIQUE,
  customer_name TEXT NOT NULL,
  customer_phone TEXT NOT NULL DEFAULT '',
  customer_email TEXT NOT NULL DEFAULT '',
  vehicle_make TEXT NOT NULL DEFAULT '',
  vehicle_model TEXT NOT NULL DEFAULT '',
  vehicle_year TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  subtotal TEXT NOT NULL,
  global_tax_rate TEXT NOT NULL,
  global_tax_amount TEXT NOT NULL,
  per_item_tax_total TEXT NOT NULL,
  discount TEXT NOT NULL,
  labor_cost TEXT NOT NULL,
  grand_total TEXT NOT NULL,
  payment_method TEXT NOT NULL CHECK (payment_method IN ('cash','card','check')),
  payment_status TEXT NOT NULL CHECK (payment_status IN ('paid','pending')),
  sale_date TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date);

CREATE TABLE IF NOT EXISTS sale_items(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
  product_id INTEGER NULL REFERENCES products(id),
  product_name TEXT NOT NULL,
  product_sku TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  unit_price TEXT NOT NULL,
  per_item_tax TEXT NOT NULL,
  line_total TEXT NOT NULL,
  is_taxable INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS categories(
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name_nocase ON categories(LOWER(name));

CREATE TABLE IF NOT EXISTS products(
  id BIGSERIAL PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  category_id BIGINT NULL REFERENCES categories(id) ON DELETE SET NULL,
  condition TEXT NOT NULL CHECK (condition IN ('new','used','refurbished')),
  quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
  cost_price NUMERIC(12,2) NOT NULL DEFAULT 0,
  selling_price NUMERIC(12,2) NOT NULL DEFAULT 0,
  per_item_tax NUMERIC(12,2) NOT NULL DEFAULT 0,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id);
CREATE INDEX IF NOT EXISTS idx_products_name     ON products(LOWER(name));
CREATE INDEX IF NOT EXISTS idx_products_active   ON products(is_active);

CREATE TABLE IF NOT EXISTS settings(
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sales(
  id BIGSERIAL PRIMARY KEY,
  invoice_number TEXT NOT NULL UNIQUE,
  customer_name TEXT NOT NULL,
  customer_phone TEXT NOT NULL DEFAULT '',
  customer_email TEXT NOT NULL DEFAULT '',
  vehicle_make TEXT NOT NULL DEFAULT '',
  vehicle_model TEXT NOT NULL DEFAULT '',
  vehicle_year TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  subtotal NUMERIC(12,2) NOT NULL,
  global_tax_rate NUMERIC(7,4) NOT NULL,
  global_tax_amount NUMERIC(12,2) NOT NULL,
  per_item_tax_total NUMERIC(12,2) NOT NULL,
  discount NUMERIC(12,2) NOT NULL,
  labor_cost NUMERIC(12,2) NOT NULL,
  grand_total NUMERIC(12,2) NOT NULL,
  payment_method TEXT NOT NULL CHECK (payment_method IN ('cash','card','check')),
  payment_status TEXT NOT NULL CHECK (payment_status IN ('paid','pending')),
  sale_date TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date);

CREATE TABLE IF NOT EXISTS sale_items(
  id BIGSERIAL PRIMARY KEY,
  sale_id BIGINT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
  product_id BIGINT NULL REFERENCES products(id),
  product_name TEXT NOT NULL,
  product_sku TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  unit_price NUMERIC(12,2) NOT NULL,
  per_item_tax NUMERIC(12,2) NOT NULL,
  line_total NUMERIC(12,2) NOT NULL,
  is_taxable BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id);
`

// isUniqueViolation recognises unique-constraint failures from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Seed inserts demo categories and products. Safe to run on every startup.
func Seed(ctx context.Context, db *sqlx.DB, logger zerolog.Logger) error {
	cats := NewCategoryRepo(db)
	prods := NewProductRepo(db)

	type demo struct {
		sku, name, category string
		cond                string
		qty                 int
		cost, price, tax    string
	}
	rows := []demo{
		{"TIRE-MICH-DEF-22565R17", "Michelin Defender 225/65R17", "Tires", "new", 12, "118.00", "169.99", ""},
		{"TIRE-GY-AS-20555R16", "Goodyear Assurance 205/55R16", "Tires", "new", 8, "84.50", "129.00", ""},
		{"TIRE-USED-19565R15", "Used 195/65R15 (6/32 tread)", "Used Tires", "used", 20, "10.00", "45.00", ""},
		{"WHEEL-STEEL-16", "Steel Wheel 16in", "Wheels", "new", 6, "38.00", "69.00", ""},
		{"VALVE-TPMS-315", "TPMS Sensor 315MHz", "Parts", "new", 30, "14.00", "39.00", "0.25"},
	}

	n := 0
	for _, r := range rows {
		cat, err := cats.GetOrCreate(ctx, r.category)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", r.category, err)
		}
		if _, err := prods.GetBySKU(ctx, r.sku); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		catID := cat.ID
		p := domain.Product{
			SKU:          r.sku,
			Name:         r.name,
			CategoryID:   &catID,
			Condition:    domain.Condition(r.cond),
			Quantity:     r.qty,
			CostPrice:    decimal.RequireFromString(r.cost),
			SellingPrice: decimal.RequireFromString(r.price),
			PerItemTax:   decimal.Zero,
			IsActive:     true,
		}
		if r.tax != "" {
			p.PerItemTax = decimal.RequireFromString(r.tax)
		}
		if _, err := prods.Create(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", r.sku, err)
		}
		n++
	}
	logger.Info().Int("products", n).Msg("seed complete")
	return nil
}
