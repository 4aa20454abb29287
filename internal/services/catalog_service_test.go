package services_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tirepos/internal/domain"
	"tirepos/internal/services"
)

func TestInventoryAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := services.NewInventoryService(f.inv, f.prods)

	cases := []struct {
		qty  int
		want string
	}{{6, "IN_STOCK"}, {5, "IN_STOCK"}, {4, "LOW_STOCK"}, {1, "LOW_STOCK"}, {0, "OUT_OF_STOCK"}}
	for _, tc := range cases {
		p := f.tire(t, "AV-"+tc.want+strconv.Itoa(tc.qty), domain.ConditionNew, tc.qty)
		a, err := svc.CheckAvailability(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, tc.want, a.Status)
		require.Equal(t, tc.qty, a.Qty)
	}

	_, err := svc.CheckAvailability(ctx, 4242)
	require.ErrorIs(t, err, services.ErrProductNotFound)
}

func TestAdjustQuantityRejectsNegativeStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := services.NewInventoryService(f.inv, f.prods)
	p := f.tire(t, "T-1", domain.ConditionNew, 2)

	updated, err := svc.AdjustQuantity(ctx, p.ID, 4)
	require.NoError(t, err)
	require.Equal(t, 6, updated.Quantity)

	_, err = svc.AdjustQuantity(ctx, p.ID, -7)
	var stock *services.InsufficientStockError
	require.ErrorAs(t, err, &stock)
	require.Equal(t, 6, stock.Available)
	require.Equal(t, 6, f.qty(t, p.ID))

	_, err = svc.AdjustQuantity(ctx, p.ID, 0)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestCatalogProductLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := services.NewCatalogService(f.cats, f.prods)
	catID := f.tires.ID

	p, err := svc.CreateProduct(ctx, domain.Product{
		SKU:          " BFG-KO2-26570R17 ",
		Name:         "BFGoodrich KO2",
		CategoryID:   &catID,
		Quantity:     4,
		SellingPrice: decimal.RequireFromString("229.99"),
	})
	require.NoError(t, err)
	require.Equal(t, "BFG-KO2-26570R17", p.SKU)
	require.Equal(t, domain.ConditionNew, p.Condition)
	require.Equal(t, "Tires", p.CategoryName)

	_, err = svc.CreateProduct(ctx, domain.Product{SKU: p.SKU, Name: "dup"})
	require.ErrorIs(t, err, services.ErrDuplicateSKU)

	p.Name = "BFGoodrich All-Terrain T/A KO2"
	p.Quantity = 99
	updated, err := svc.UpdateProduct(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "BFGoodrich All-Terrain T/A KO2", updated.Name)
	require.Equal(t, 4, updated.Quantity, "update must not move stock")

	found, err := svc.Search(ctx, "ko2", 0, "", 1, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))
	_, err = svc.GetProduct(ctx, p.ID)
	require.ErrorIs(t, err, services.ErrProductNotFound)
	require.ErrorIs(t, svc.DeleteProduct(ctx, p.ID), services.ErrProductNotFound)
}

func TestCatalogValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := services.NewCatalogService(f.cats, f.prods)
	missing := int64(777)

	cases := []struct {
		name  string
		p     domain.Product
		field string
	}{
		{"sku", domain.Product{Name: "x"}, "sku"},
		{"name", domain.Product{SKU: "x"}, "name"},
		{"condition", domain.Product{SKU: "x", Name: "x", Condition: "mint"}, "condition"},
		{"price", domain.Product{SKU: "x", Name: "x", SellingPrice: decimal.RequireFromString("-1")}, "sellingPrice"},
		{"quantity", domain.Product{SKU: "x", Name: "x", Quantity: -1}, "quantity"},
		{"category", domain.Product{SKU: "x", Name: "x", CategoryID: &missing}, "categoryId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, tc.p)
			var ve *services.ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestImportSkipsBadRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := services.NewImportService(f.cats, f.prods, f.metrics, zerolog.Nop())
	existing := f.tire(t, "T-EXIST", domain.ConditionNew, 1)

	res, err := svc.Import(ctx, []services.ImportRow{
		{SKU: "W-1", Name: "Alloy 17", Category: "Wheels", Condition: "New", Quantity: 4, SellingPrice: "149.00"},
		{SKU: "", Name: "no sku", SellingPrice: "1"},
		{SKU: "W-2", Name: "bad price", SellingPrice: "cheap"},
		{SKU: existing.SKU, Name: "Restocked", Category: "tires", Quantity: 12, SellingPrice: "110.00"},
		{SKU: "W-3", Name: "negative", Quantity: -2, SellingPrice: "1"},
		{SKU: "W-4", Name: "weird", Condition: "vintage", SellingPrice: "1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.BatchID)
	require.Equal(t, 1, res.Imported)
	require.Equal(t, 1, res.Updated)
	require.Equal(t, 4, res.Skipped)
	require.Len(t, res.Errors, 4)
	require.Equal(t, 2, res.Errors[0].Row)

	require.Equal(t, 12, f.qty(t, existing.ID))
	restocked, err := f.prods.GetActive(ctx, existing.ID)
	require.NoError(t, err)
	require.Equal(t, "Tires", restocked.CategoryName)

	w, err := f.prods.GetBySKU(ctx, "W-1")
	require.NoError(t, err)
	require.Equal(t, "Wheels", w.CategoryName)
	require.Equal(t, domain.ConditionNew, w.Condition)

	_, err = svc.Import(ctx, nil)
	require.ErrorIs(t, err, services.ErrValidation)
}
