package services_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tirepos/internal/domain"
	"tirepos/internal/obs"
	"tirepos/internal/pricing"
	"tirepos/internal/repos"
	"tirepos/internal/services"
)

type fixture struct {
	db       *sqlx.DB
	prods    *repos.ProductRepo
	cats     *repos.CategoryRepo
	inv      *repos.InventoryRepo
	sales    *repos.SaleRepo
	settings *repos.SettingsRepo
	metrics  *obs.Metrics
	svc      *services.SaleService
	tires    domain.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:       db,
		prods:    repos.NewProductRepo(db),
		cats:     repos.NewCategoryRepo(db),
		inv:      repos.NewInventoryRepo(db),
		sales:    repos.NewSaleRepo(db),
		settings: repos.NewSettingsRepo(db),
		metrics:  obs.NewMetrics("test", prometheus.NewRegistry()),
	}
	f.tires, err = f.cats.Create(context.Background(), "Tires", "Passenger and light truck")
	require.NoError(t, err)

	n := services.NewNormalizer(f.prods, f.cats, pricing.TireFee())
	f.svc = services.NewSaleService(n, f.sales, f.settings, decimal.RequireFromString(pricing.DefaultGlobalTaxRate), f.metrics, zerolog.Nop())
	return f
}

// tire adds an active product in the Tires category.
func (f *fixture) tire(t *testing.T, sku string, cond domain.Condition, qty int) domain.Product {
	t.Helper()
	catID := f.tires.ID
	p, err := f.prods.Create(context.Background(), domain.Product{
		SKU:          sku,
		Name:         "Tire " + sku,
		CategoryID:   &catID,
		Condition:    cond,
		Quantity:     qty,
		CostPrice:    decimal.RequireFromString("60.00"),
		SellingPrice: decimal.RequireFromString("100.00"),
		IsActive:     true,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) qty(t *testing.T, id int64) int {
	t.Helper()
	q, err := f.inv.Qty(context.Background(), id)
	require.NoError(t, err)
	return q
}

// countSales returns the number of sale rows and sale item rows.
func (f *fixture) countSales(t *testing.T) (sales, items int) {
	t.Helper()
	require.NoError(t, f.db.Get(&sales, `SELECT COUNT(*) FROM sales`))
	require.NoError(t, f.db.Get(&items, `SELECT COUNT(*) FROM sale_items`))
	return sales, items
}

func (f *fixture) requireNoSales(t *testing.T) {
	t.Helper()
	n, items := f.countSales(t)
	require.Zero(t, n, "sales rows")
	require.Zero(t, items, "sale item rows")
}

func money(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Equal(t, want, pricing.Format(got))
}
