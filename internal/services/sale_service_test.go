package services_test

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tirepos/internal/domain"
	"tirepos/internal/pricing"
	"tirepos/internal/services"
)

var invoicePattern = regexp.MustCompile(`^INV-\d{8}-[0-9A-Z]{4}$`)

func cart(entries ...services.CartEntry) []services.CartEntry { return entries }

func TestCreateTireSale(t *testing.T) {
	f := newFixture(t)
	p := f.tire(t, "T-1", domain.ConditionNew, 10)

	sale, err := f.svc.Create(context.Background(), services.SaleRequest{
		Customer: domain.Customer{CustomerName: "  Alex  ", VehicleMake: "Honda"},
		Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 2, UnitPrice: "100.00"}),
	})
	require.NoError(t, err)

	require.Regexp(t, invoicePattern, sale.InvoiceNumber)
	require.Equal(t, "Alex", sale.CustomerName)
	require.Equal(t, domain.PaymentCash, sale.PaymentMethod)
	require.Equal(t, domain.PaymentPaid, sale.PaymentStatus)
	money(t, "200.00", sale.Subtotal)
	money(t, "3.50", sale.PerItemTaxTotal)
	money(t, "19.00", sale.GlobalTaxAmount)
	money(t, "222.50", sale.GrandTotal)
	require.Equal(t, "9.5", sale.GlobalTaxRate.String())
	require.Equal(t, 8, f.qty(t, p.ID))

	stored, err := f.svc.Get(context.Background(), sale.InvoiceNumber)
	require.NoError(t, err)
	money(t, "222.50", stored.GrandTotal)
	require.Len(t, stored.Items, 1)
	require.Equal(t, p.SKU, stored.Items[0].ProductSKU)
	money(t, "1.75", stored.Items[0].PerItemTax)
	money(t, "200.00", stored.Items[0].LineTotal)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SalesCommitted.WithLabelValues("cash")))
}

func TestQuoteTireWithUntaxedCustomLine(t *testing.T) {
	f := newFixture(t)
	p := f.tire(t, "T-1", domain.ConditionNew, 10)

	q, err := f.svc.Quote(context.Background(), services.SaleRequest{
		Items: cart(
			services.CatalogEntry{ProductID: p.ID, Quantity: 2, UnitPrice: "100.00"},
			services.CustomEntry{Name: "Labor", Quantity: 1, UnitPrice: "50.00"},
		),
	})
	require.NoError(t, err)
	money(t, "250.00", q.Totals.Subtotal)
	money(t, "3.50", q.Totals.PerItemTaxTotal)
	money(t, "200.00", q.Totals.TaxableSubtotal)
	money(t, "200.00", q.Totals.TaxableAmount)
	money(t, "19.00", q.Totals.GlobalTaxAmount)
	// 250 + 19 + 3.50: the untaxed custom line is still charged.
	money(t, "272.50", q.Totals.GrandTotal)
	require.Equal(t, 10, f.qty(t, p.ID), "quote must not touch stock")
	f.requireNoSales(t)
}

func TestQuoteOnlyUntaxedCustomSkipsLaborTax(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Quote(context.Background(), services.SaleRequest{
		LaborCost: "30.00",
		Items:     cart(services.CustomEntry{Name: "Rotation", Quantity: 1, UnitPrice: "20.00"}),
	})
	require.NoError(t, err)
	money(t, "0.00", q.Totals.TaxableAmount)
	money(t, "0.00", q.Totals.GlobalTaxAmount)
	money(t, "50.00", q.Totals.GrandTotal)
	money(t, "0.00", q.Items[0].PerItemTax)
}

func TestTaxableCustomLineJoinsBase(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Quote(context.Background(), services.SaleRequest{
		Items: cart(services.CustomEntry{Name: "Wheel lock", Quantity: 2, UnitPrice: "10.00", IsTaxable: true}),
	})
	require.NoError(t, err)
	money(t, "0.00", q.Totals.PerItemTaxTotal)
	money(t, "1.90", q.Totals.GlobalTaxAmount)
	money(t, "21.90", q.Totals.GrandTotal)
}

func TestPerItemTaxResolution(t *testing.T) {
	f := newFixture(t)
	newTire := f.tire(t, "T-NEW", domain.ConditionNew, 5)
	usedTire := f.tire(t, "T-USED", domain.ConditionUsed, 5)

	q, err := f.svc.Quote(context.Background(), services.SaleRequest{
		Items: cart(
			services.CatalogEntry{ProductID: newTire.ID, Quantity: 1, UnitPrice: "100"},
			services.CatalogEntry{ProductID: usedTire.ID, Quantity: 1, UnitPrice: "40"},
			services.CatalogEntry{ProductID: newTire.ID, Quantity: 1, UnitPrice: "100", PerItemTax: "0"},
			services.CatalogEntry{ProductID: newTire.ID, Quantity: 1, UnitPrice: "100", PerItemTax: "2.10"},
			services.CatalogEntry{ProductID: newTire.ID, Quantity: 1, UnitPrice: "100", PerItemTax: "n/a"},
		),
	})
	require.NoError(t, err)
	money(t, "1.75", q.Items[0].PerItemTax)
	money(t, "0.00", q.Items[1].PerItemTax)
	money(t, "0.00", q.Items[2].PerItemTax)
	money(t, "2.10", q.Items[3].PerItemTax)
	money(t, "0.00", q.Items[4].PerItemTax)
}

func TestInsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	p := f.tire(t, "T-1", domain.ConditionNew, 3)

	_, err := f.svc.Create(context.Background(), services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 5, UnitPrice: "100.00"}),
	})
	var stock *services.InsufficientStockError
	require.ErrorAs(t, err, &stock)
	require.Equal(t, 3, stock.Available)
	require.Contains(t, err.Error(), "only 3 available")
	require.Equal(t, 3, f.qty(t, p.ID))
	f.requireNoSales(t)
}

func TestRepeatedProductLinesShareStock(t *testing.T) {
	f := newFixture(t)
	p := f.tire(t, "T-1", domain.ConditionNew, 4)

	_, err := f.svc.Create(context.Background(), services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Items: cart(
			services.CatalogEntry{ProductID: p.ID, Quantity: 3, UnitPrice: "100.00"},
			services.CatalogEntry{ProductID: p.ID, Quantity: 2, UnitPrice: "90.00"},
		),
	})
	require.ErrorIs(t, err, services.ErrInsufficientStock)
	require.Equal(t, 4, f.qty(t, p.ID))
	f.requireNoSales(t)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	p := f.tire(t, "T-1", domain.ConditionNew, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), services.SaleRequest{
				Customer: domain.Customer{CustomerName: "Terminal"},
				Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 3, UnitPrice: "100.00"}),
			})
		}(i)
	}
	wg.Wait()

	ok, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, services.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, short)
	require.Equal(t, 2, f.qty(t, p.ID))

	n, items := f.countSales(t)
	require.Equal(t, 1, n)
	require.Equal(t, 1, items)
}

func TestManyConcurrentSalesKeepStockNonNegative(t *testing.T) {
	f := newFixture(t)
	p := f.tire(t, "T-1", domain.ConditionNew, 7)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Create(context.Background(), services.SaleRequest{
				Customer: domain.Customer{CustomerName: "Terminal"},
				Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 2, UnitPrice: "100.00"}),
			})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, f.qty(t, p.ID))
	n, _ := f.countSales(t)
	require.Equal(t, 3, n)
}

func TestInactiveProductNotFound(t *testing.T) {
	f := newFixture(t)
	p := f.tire(t, "T-1", domain.ConditionNew, 5)
	require.NoError(t, f.prods.Deactivate(context.Background(), p.ID))

	_, err := f.svc.Create(context.Background(), services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 1, UnitPrice: "100.00"}),
	})
	var nf *services.ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, p.ID, nf.ProductID)
	f.requireNoSales(t)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	p := f.tire(t, "T-1", domain.ConditionNew, 5)
	item := services.CatalogEntry{ProductID: p.ID, Quantity: 1, UnitPrice: "100.00"}
	named := domain.Customer{CustomerName: "Jo"}

	cases := []struct {
		name  string
		req   services.SaleRequest
		field string
	}{
		{"missing customer", services.SaleRequest{Items: cart(item)}, "customerName"},
		{"empty cart", services.SaleRequest{Customer: named}, "items"},
		{"bad payment method", services.SaleRequest{Customer: named, PaymentMethod: "barter", Items: cart(item)}, "paymentMethod"},
		{"zero quantity", services.SaleRequest{Customer: named, Items: cart(services.CatalogEntry{ProductID: p.ID, UnitPrice: "1"})}, "items[0].quantity"},
		{"bad price", services.SaleRequest{Customer: named, Items: cart(services.CatalogEntry{ProductID: p.ID, Quantity: 1, UnitPrice: "abc"})}, "items[0].unitPrice"},
		{"missing price", services.SaleRequest{Customer: named, Items: cart(item, services.CustomEntry{Name: "Fee", Quantity: 1})}, "items[1].unitPrice"},
		{"custom without name", services.SaleRequest{Customer: named, Items: cart(services.CustomEntry{Quantity: 1, UnitPrice: "5"})}, "items[0].name"},
		{"bad product id", services.SaleRequest{Customer: named, Items: cart(services.CatalogEntry{Quantity: 1, UnitPrice: "5"})}, "items[0].productId"},
		{"negative fee", services.SaleRequest{Customer: named, Items: cart(services.CatalogEntry{ProductID: p.ID, Quantity: 1, UnitPrice: "100", PerItemTax: "-50"})}, "items[0].perItemTax"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.req)
			var ve *services.ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.field, ve.Field)
			require.ErrorIs(t, err, services.ErrValidation)
		})
	}
	require.Equal(t, 5, f.qty(t, p.ID))
	f.requireNoSales(t)
}

func TestOptionalAmountsDefaultToZero(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Quote(context.Background(), services.SaleRequest{
		Discount:  "ten",
		LaborCost: "",
		Items:     cart(services.CustomEntry{Name: "Fee", Quantity: 1, UnitPrice: "10", IsTaxable: true}),
	})
	require.NoError(t, err)
	money(t, "0.00", q.Totals.Discount)
	money(t, "10.95", q.Totals.GrandTotal)
}

func TestTaxRateIsSnapshotted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.tire(t, "T-1", domain.ConditionUsed, 5)
	require.NoError(t, f.settings.SetGlobalTaxRate(ctx, decimal.RequireFromString("8")))

	sale, err := f.svc.Create(ctx, services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 1, UnitPrice: "100.00"}),
	})
	require.NoError(t, err)
	require.NoError(t, f.settings.SetGlobalTaxRate(ctx, decimal.RequireFromString("10")))

	stored, err := f.svc.Get(ctx, sale.InvoiceNumber)
	require.NoError(t, err)
	require.Equal(t, "8", stored.GlobalTaxRate.String())
	money(t, "108.00", stored.GrandTotal)
}

func TestInvoiceConflictIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.tire(t, "T-1", domain.ConditionUsed, 5)
	req := services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 1, UnitPrice: "100.00"}),
	}

	numbers := []string{"INV-20250314-AAAA", "INV-20250314-AAAA", "INV-20250314-BBBB"}
	f.svc.Invoices = func(time.Time) (string, error) {
		n := numbers[0]
		numbers = numbers[1:]
		return n, nil
	}

	first, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	require.Equal(t, "INV-20250314-AAAA", first.InvoiceNumber)
	require.Equal(t, "INV-20250314-BBBB", second.InvoiceNumber)
	require.Equal(t, 3, f.qty(t, p.ID))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.InvoiceConflicts))
}

func TestInvoiceConflictGivesUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.tire(t, "T-1", domain.ConditionUsed, 5)
	req := services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 1, UnitPrice: "100.00"}),
	}
	f.svc.Invoices = func(time.Time) (string, error) { return "INV-20250314-ZZZZ", nil }

	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, req)
	require.ErrorIs(t, err, services.ErrInvoiceConflict)
	require.Equal(t, 4, f.qty(t, p.ID))
}

func TestInvoiceUsesCommitDate(t *testing.T) {
	f := newFixture(t)
	f.svc.Now = func() time.Time { return time.Date(2025, 3, 14, 16, 30, 0, 0, time.UTC) }

	sale, err := f.svc.Create(context.Background(), services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Items:    cart(services.CustomEntry{Name: "Flat repair", Quantity: 1, UnitPrice: "25.00"}),
	})
	require.NoError(t, err)
	require.Regexp(t, `^INV-20250314-[0-9A-Z]{4}$`, sale.InvoiceNumber)
	require.True(t, sale.SaleDate.Equal(time.Date(2025, 3, 14, 16, 30, 0, 0, time.UTC)))
}

type failingStore struct{ services.SaleStore }

func (failingStore) Create(context.Context, *domain.Sale) error {
	return errors.New("disk I/O error")
}

func TestCommitFailureIsGenericAndLogged(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	svc := services.NewSaleService(f.svc.Normalizer, failingStore{f.sales}, f.settings, decimal.RequireFromString("9.5"), f.metrics, zerolog.New(&buf))

	_, err := svc.Create(context.Background(), services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Items:    cart(services.CustomEntry{Name: "Fee", Quantity: 1, UnitPrice: "5"}),
	})
	require.ErrorIs(t, err, services.ErrCommitFailure)
	require.NotContains(t, err.Error(), "disk")
	require.Contains(t, buf.String(), "sale.commit.fail")
	require.Contains(t, buf.String(), "disk I/O error")
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SaleFailures.WithLabelValues("commit")))
}

func TestUpdateMetaNeverRetotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.tire(t, "T-1", domain.ConditionNew, 5)
	sale, err := f.svc.Create(ctx, services.SaleRequest{
		Customer: domain.Customer{CustomerName: "Jo"},
		Discount: "10",
		Items:    cart(services.CatalogEntry{ProductID: p.ID, Quantity: 1, UnitPrice: "100.00"}),
	})
	require.NoError(t, err)

	card := domain.PaymentCard
	pending := domain.PaymentPending
	updated, err := f.svc.UpdateMeta(ctx, sale.InvoiceNumber, services.SaleUpdate{
		Customer:      &domain.Customer{CustomerName: "Jordan", VehicleModel: "Civic"},
		PaymentMethod: &card,
		PaymentStatus: &pending,
	})
	require.NoError(t, err)
	require.Equal(t, "Jordan", updated.CustomerName)

	stored, err := f.svc.Get(ctx, sale.InvoiceNumber)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCard, stored.PaymentMethod)
	require.Equal(t, domain.PaymentPending, stored.PaymentStatus)
	require.Equal(t, pricing.Format(sale.GrandTotal), pricing.Format(stored.GrandTotal))

	bad := domain.PaymentStatus("refunded")
	_, err = f.svc.UpdateMeta(ctx, sale.InvoiceNumber, services.SaleUpdate{PaymentStatus: &bad})
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = f.svc.UpdateMeta(ctx, "INV-00000000-0000", services.SaleUpdate{})
	require.ErrorIs(t, err, services.ErrSaleNotFound)
}
