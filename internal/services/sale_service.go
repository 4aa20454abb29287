package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tirepos/internal/domain"
	"tirepos/internal/obs"
	"tirepos/internal/pricing"
	"tirepos/internal/repos"
)

// MaxInvoiceAttempts bounds how many invoice suffixes a sale tries before
// surfacing ErrInvoiceConflict.
const MaxInvoiceAttempts = 5

// SaleStore persists a sale, its items and the matching stock decrements as
// one transaction.
type SaleStore interface {
	Create(ctx context.Context, s *domain.Sale) error
	Get(ctx context.Context, invoice string) (domain.Sale, error)
	ListLatest(ctx context.Context, limit int) ([]domain.Sale, error)
	UpdateMeta(ctx context.Context, invoice string, c domain.Customer, method domain.PaymentMethod, status domain.PaymentStatus) error
}

// Settings exposes the live shop tax rate.
type Settings interface {
	GlobalTaxRate(ctx context.Context, fallback decimal.Decimal) (decimal.Decimal, error)
}

// SaleRequest is a cart plus order metadata.
type SaleRequest struct {
	Customer      domain.Customer
	PaymentMethod domain.PaymentMethod
	Discount      string
	LaborCost     string
	Items         []CartEntry
}

// Quote is a priced cart that has not been committed.
type Quote struct {
	Items  []LineItem
	Totals pricing.Totals
}

// SaleUpdate carries editable sale metadata. Nil fields keep their value.
type SaleUpdate struct {
	Customer      *domain.Customer
	PaymentMethod *domain.PaymentMethod
	PaymentStatus *domain.PaymentStatus
}

type SaleService struct {
	Normalizer     *Normalizer
	Store          SaleStore
	Settings       Settings
	DefaultTaxRate decimal.Decimal
	Metrics        *obs.Metrics
	Logger         zerolog.Logger

	Now      func() time.Time
	Invoices InvoiceGenerator
}

func NewSaleService(n *Normalizer, store SaleStore, settings Settings, defaultTaxRate decimal.Decimal, metrics *obs.Metrics, logger zerolog.Logger) *SaleService {
	return &SaleService{
		Normalizer:     n,
		Store:          store,
		Settings:       settings,
		DefaultTaxRate: defaultTaxRate,
		Metrics:        metrics,
		Logger:         logger,
		Now:            time.Now,
		Invoices:       NewInvoiceNumber,
	}
}

// Quote prices a cart without writing anything.
func (s *SaleService) Quote(ctx context.Context, req SaleRequest) (Quote, error) {
	items, err := s.Normalizer.Normalize(ctx, req.Items)
	if err != nil {
		return Quote{}, err
	}
	rate, err := s.Settings.GlobalTaxRate(ctx, s.DefaultTaxRate)
	if err != nil {
		return Quote{}, fmt.Errorf("read tax rate: %w", err)
	}
	return Quote{Items: items, Totals: totalsFor(items, req, rate)}, nil
}

// Create settles a sale: validates the cart, computes totals with the tax
// rate read once, then commits sale, items and stock decrements atomically.
// Nothing is written when an error is returned.
func (s *SaleService) Create(ctx context.Context, req SaleRequest) (domain.Sale, error) {
	sale, err := s.prepare(ctx, req)
	if err != nil {
		s.Metrics.SaleFailed(failureReason(err))
		return domain.Sale{}, err
	}

	for attempt := 1; ; attempt++ {
		now := s.now()
		invoice, err := s.invoice(now)
		if err != nil {
			s.Metrics.SaleFailed("commit")
			s.Logger.Error().Err(err).Msg("sale.invoice.generate")
			return domain.Sale{}, ErrCommitFailure
		}
		sale.InvoiceNumber = invoice
		sale.SaleDate = now.UTC()
		sale.ID = 0

		err = s.Store.Create(ctx, &sale)
		if err == nil {
			break
		}
		if errors.Is(err, repos.ErrDuplicate) {
			s.Metrics.InvoiceConflict()
			s.Logger.Warn().Str("invoice", invoice).Int("attempt", attempt).Msg("sale.invoice.conflict")
			if attempt < MaxInvoiceAttempts {
				continue
			}
			s.Metrics.SaleFailed("invoice_conflict")
			return domain.Sale{}, fmt.Errorf("%w after %d attempts", ErrInvoiceConflict, attempt)
		}
		err = s.commitError(err, sale)
		s.Metrics.SaleFailed(failureReason(err))
		return domain.Sale{}, err
	}

	s.Metrics.SaleCommitted(string(sale.PaymentMethod))
	s.Logger.Info().
		Str("invoice", sale.InvoiceNumber).
		Int("items", len(sale.Items)).
		Str("grand_total", pricing.Format(sale.GrandTotal)).
		Msg("sale.create")
	return sale, nil
}

func (s *SaleService) prepare(ctx context.Context, req SaleRequest) (domain.Sale, error) {
	c := trimCustomer(req.Customer)
	if c.CustomerName == "" {
		return domain.Sale{}, invalid("customerName", "is required")
	}
	method := req.PaymentMethod
	if method == "" {
		method = domain.PaymentCash
	}
	if !method.Valid() {
		return domain.Sale{}, invalid("paymentMethod", "must be cash, card or check")
	}

	q, err := s.Quote(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}
	t := q.Totals.Rounded()

	sale := domain.Sale{
		Customer:        c,
		Subtotal:        t.Subtotal,
		GlobalTaxRate:   t.GlobalTaxRate,
		GlobalTaxAmount: t.GlobalTaxAmount,
		PerItemTaxTotal: t.PerItemTaxTotal,
		Discount:        t.Discount,
		LaborCost:       t.LaborCost,
		GrandTotal:      t.GrandTotal,
		PaymentMethod:   method,
		PaymentStatus:   domain.PaymentPaid,
		Items:           make([]domain.SaleItem, 0, len(q.Items)),
	}
	for _, it := range q.Items {
		sale.Items = append(sale.Items, domain.SaleItem{
			ProductID:   it.ProductID,
			ProductName: it.Name,
			ProductSKU:  it.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   pricing.Round(it.UnitPrice),
			PerItemTax:  pricing.Round(it.PerItemTax),
			LineTotal:   pricing.Round(it.Total()),
			IsTaxable:   it.Taxable,
		})
	}
	return sale, nil
}

// commitError maps store failures. Stock lost to a concurrent sale and
// products deactivated since validation surface as their domain errors;
// anything else is logged and reported generically.
func (s *SaleService) commitError(err error, sale domain.Sale) error {
	var short *repos.StockShortageError
	if errors.As(err, &short) {
		return &InsufficientStockError{
			ProductID:   short.ProductID,
			ProductName: itemName(sale, short.ProductID),
			Requested:   short.Requested,
			Available:   short.Available,
		}
	}
	if errors.Is(err, repos.ErrNotFound) {
		return ErrProductNotFound
	}
	s.Logger.Error().Err(err).
		Str("invoice", sale.InvoiceNumber).
		Str("customer", sale.CustomerName).
		Int("items", len(sale.Items)).
		Msg("sale.commit.fail")
	return ErrCommitFailure
}

func (s *SaleService) Get(ctx context.Context, invoice string) (domain.Sale, error) {
	sale, err := s.Store.Get(ctx, strings.TrimSpace(invoice))
	if errors.Is(err, repos.ErrNotFound) {
		return domain.Sale{}, ErrSaleNotFound
	}
	return sale, err
}

func (s *SaleService) List(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.Store.ListLatest(ctx, limit)
}

// UpdateMeta edits customer and payment metadata. Totals stay as committed.
func (s *SaleService) UpdateMeta(ctx context.Context, invoice string, u SaleUpdate) (domain.Sale, error) {
	sale, err := s.Get(ctx, invoice)
	if err != nil {
		return domain.Sale{}, err
	}
	if u.Customer != nil {
		sale.Customer = trimCustomer(*u.Customer)
		if sale.CustomerName == "" {
			return domain.Sale{}, invalid("customerName", "is required")
		}
	}
	if u.PaymentMethod != nil {
		if !u.PaymentMethod.Valid() {
			return domain.Sale{}, invalid("paymentMethod", "must be cash, card or check")
		}
		sale.PaymentMethod = *u.PaymentMethod
	}
	if u.PaymentStatus != nil {
		if !u.PaymentStatus.Valid() {
			return domain.Sale{}, invalid("paymentStatus", "must be paid or pending")
		}
		sale.PaymentStatus = *u.PaymentStatus
	}
	err = s.Store.UpdateMeta(ctx, sale.InvoiceNumber, sale.Customer, sale.PaymentMethod, sale.PaymentStatus)
	if errors.Is(err, repos.ErrNotFound) {
		return domain.Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return domain.Sale{}, err
	}
	s.Logger.Info().Str("invoice", sale.InvoiceNumber).Msg("sale.update")
	return sale, nil
}

func (s *SaleService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SaleService) invoice(at time.Time) (string, error) {
	if s.Invoices != nil {
		return s.Invoices(at)
	}
	return NewInvoiceNumber(at)
}

func totalsFor(items []LineItem, req SaleRequest, rate decimal.Decimal) pricing.Totals {
	lines := make([]pricing.Line, len(items))
	for i, it := range items {
		lines[i] = it.Line()
	}
	return pricing.Compute(lines, optionalAmount(req.Discount), optionalAmount(req.LaborCost), rate)
}

func trimCustomer(c domain.Customer) domain.Customer {
	return domain.Customer{
		CustomerName:  strings.TrimSpace(c.CustomerName),
		CustomerPhone: strings.TrimSpace(c.CustomerPhone),
		CustomerEmail: strings.TrimSpace(c.CustomerEmail),
		VehicleMake:   strings.TrimSpace(c.VehicleMake),
		VehicleModel:  strings.TrimSpace(c.VehicleModel),
		VehicleYear:   strings.TrimSpace(c.VehicleYear),
		Notes:         strings.TrimSpace(c.Notes),
	}
}

func itemName(sale domain.Sale, productID int64) string {
	for _, it := range sale.Items {
		if it.ProductID != nil && *it.ProductID == productID {
			return it.ProductName
		}
	}
	return ""
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrProductNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvoiceConflict):
		return "invoice_conflict"
	}
	return "commit"
}
