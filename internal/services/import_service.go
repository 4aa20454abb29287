package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tirepos/internal/domain"
	"tirepos/internal/obs"
	"tirepos/internal/repos"
)

// ImportRow is one already-parsed product row from a bulk upload.
type ImportRow struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Condition    string `json:"condition"`
	Quantity     int    `json:"quantity"`
	CostPrice    string `json:"costPrice"`
	SellingPrice string `json:"sellingPrice"`
	PerItemTax   string `json:"perItemTax"`
}

type ImportRowError struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku"`
	Message string `json:"message"`
}

type ImportResult struct {
	BatchID  string           `json:"batchId"`
	Imported int              `json:"imported"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors"`
}

// ImportService upserts products row by row. Unlike sale settlement, a bad
// row is logged and skipped while the rest of the batch proceeds.
type ImportService struct {
	Cats    *repos.CategoryRepo
	Prods   *repos.ProductRepo
	Metrics *obs.Metrics
	Logger  zerolog.Logger
}

func NewImportService(cats *repos.CategoryRepo, prods *repos.ProductRepo, metrics *obs.Metrics, logger zerolog.Logger) *ImportService {
	return &ImportService{Cats: cats, Prods: prods, Metrics: metrics, Logger: logger}
}

func (s *ImportService) Import(ctx context.Context, rows []ImportRow) (ImportResult, error) {
	res := ImportResult{BatchID: uuid.NewString(), Errors: []ImportRowError{}}
	if len(rows) == 0 {
		return res, invalid("rows", "at least one row is required")
	}
	log := s.Logger.With().Str("batch_id", res.BatchID).Logger()

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		created, err := s.importRow(ctx, row)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, ImportRowError{Row: i + 1, SKU: row.SKU, Message: err.Error()})
			s.Metrics.ImportRow("skipped")
			log.Warn().Err(err).Int("row", i+1).Str("sku", row.SKU).Msg("import.row.fail")
			continue
		}
		if created {
			res.Imported++
			s.Metrics.ImportRow("imported")
		} else {
			res.Updated++
			s.Metrics.ImportRow("updated")
		}
	}

	log.Info().Int("imported", res.Imported).Int("updated", res.Updated).Int("skipped", res.Skipped).Msg("import.done")
	return res, nil
}

func (s *ImportService) importRow(ctx context.Context, row ImportRow) (bool, error) {
	p := domain.Product{
		SKU:       strings.TrimSpace(row.SKU),
		Name:      strings.TrimSpace(row.Name),
		Condition: domain.Condition(strings.ToLower(strings.TrimSpace(row.Condition))),
		Quantity:  row.Quantity,
	}
	if p.SKU == "" {
		return false, fmt.Errorf("sku is required")
	}
	if p.Name == "" {
		return false, fmt.Errorf("name is required")
	}
	if p.Condition == "" {
		p.Condition = domain.ConditionNew
	}
	if !p.Condition.Valid() {
		return false, fmt.Errorf("unknown condition %q", row.Condition)
	}
	if p.Quantity < 0 {
		return false, fmt.Errorf("quantity must not be negative")
	}

	var err error
	if p.SellingPrice, err = importAmount("sellingPrice", row.SellingPrice, true); err != nil {
		return false, err
	}
	if p.CostPrice, err = importAmount("costPrice", row.CostPrice, false); err != nil {
		return false, err
	}
	if p.PerItemTax, err = importAmount("perItemTax", row.PerItemTax, false); err != nil {
		return false, err
	}

	if name := strings.TrimSpace(row.Category); name != "" {
		c, err := s.Cats.GetOrCreate(ctx, name)
		if err != nil {
			return false, fmt.Errorf("category %q: %w", name, err)
		}
		p.CategoryID = &c.ID
	}

	_, created, err := s.Prods.UpsertBySKU(ctx, p)
	return created, err
}

func importAmount(field, raw string, required bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return decimal.Zero, fmt.Errorf("%s is required", field)
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a decimal amount", field, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
