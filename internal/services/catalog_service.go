package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"tirepos/internal/domain"
	"tirepos/internal/repos"
)

var ErrDuplicateSKU = errors.New("sku already exists")

type CatalogService struct {
	Cats  *repos.CategoryRepo
	Prods *repos.ProductRepo
}

func NewCatalogService(cats *repos.CategoryRepo, prods *repos.ProductRepo) *CatalogService {
	return &CatalogService{Cats: cats, Prods: prods}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.Cats.List(ctx)
}

func (s *CatalogService) CreateCategory(ctx context.Context, name, description string) (domain.Category, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Category{}, invalid("name", "is required")
	}
	c, err := s.Cats.Create(ctx, name, description)
	if errors.Is(err, repos.ErrDuplicate) {
		return domain.Category{}, invalid("name", "category %q already exists", strings.TrimSpace(name))
	}
	return c, err
}

// Search lists active products. page is 1-based.
func (s *CatalogService) Search(ctx context.Context, q string, categoryID int64, condition domain.Condition, page, pageSize int) ([]domain.Product, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return s.Prods.Search(ctx, repos.ProductFilter{
		Q:          q,
		CategoryID: categoryID,
		Condition:  condition,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	})
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := s.Prods.GetActive(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return domain.Product{}, &ProductNotFoundError{ProductID: id}
	}
	return p, err
}

// CreateProduct validates and inserts a new active product.
func (s *CatalogService) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p, err := s.checkProduct(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}
	if p.Quantity < 0 {
		return domain.Product{}, invalid("quantity", "must not be negative")
	}
	p.IsActive = true
	created, err := s.Prods.Create(ctx, p)
	if errors.Is(err, repos.ErrDuplicate) {
		return domain.Product{}, ErrDuplicateSKU
	}
	if err != nil {
		return domain.Product{}, err
	}
	return s.Prods.GetActive(ctx, created.ID)
}

// UpdateProduct edits catalog fields. Stock is changed through
// InventoryService.AdjustQuantity only.
func (s *CatalogService) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p, err := s.checkProduct(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}
	err = s.Prods.Update(ctx, p)
	switch {
	case errors.Is(err, repos.ErrDuplicate):
		return domain.Product{}, ErrDuplicateSKU
	case errors.Is(err, repos.ErrNotFound):
		return domain.Product{}, &ProductNotFoundError{ProductID: p.ID}
	case err != nil:
		return domain.Product{}, err
	}
	return s.Prods.GetActive(ctx, p.ID)
}

// DeleteProduct soft-deletes; past sales keep their item snapshots.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	err := s.Prods.Deactivate(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return &ProductNotFoundError{ProductID: id}
	}
	return err
}

func (s *CatalogService) checkProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if p.SKU == "" {
		return p, invalid("sku", "is required")
	}
	if p.Name == "" {
		return p, invalid("name", "is required")
	}
	if p.Condition == "" {
		p.Condition = domain.ConditionNew
	}
	if !p.Condition.Valid() {
		return p, invalid("condition", "must be new, used or refurbished")
	}
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"costPrice", p.CostPrice},
		{"sellingPrice", p.SellingPrice},
		{"perItemTax", p.PerItemTax},
	} {
		if f.v.IsNegative() {
			return p, invalid(f.name, "must not be negative")
		}
	}
	if p.CategoryID != nil {
		if _, err := s.Cats.Get(ctx, *p.CategoryID); err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return p, invalid("categoryId", "category %d does not exist", *p.CategoryID)
			}
			return p, err
		}
	}
	return p, nil
}
