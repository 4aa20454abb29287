package services

import (
	"context"
	"errors"

	"tirepos/internal/domain"
	"tirepos/internal/repos"
)

type InventoryService struct {
	Inv   *repos.InventoryRepo
	Prods *repos.ProductRepo
}

func NewInventoryService(inv *repos.InventoryRepo, prods *repos.ProductRepo) *InventoryService {
	return &InventoryService{Inv: inv, Prods: prods}
}

// CheckAvailability converts qty into IN_STOCK / LOW_STOCK / OUT_OF_STOCK.
func (s *InventoryService) CheckAvailability(ctx context.Context, productID int64) (domain.Availability, error) {
	qty, err := s.Inv.Qty(ctx, productID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return domain.Availability{}, &ProductNotFoundError{ProductID: productID}
		}
		return domain.Availability{}, err
	}
	return availability(qty), nil
}

func availability(qty int) domain.Availability {
	status := "OUT_OF_STOCK"
	switch {
	case qty >= 5:
		status = "IN_STOCK"
	case qty > 0:
		status = "LOW_STOCK"
	}
	return domain.Availability{Status: status, Qty: qty}
}

// AdjustQuantity applies delta to a product's stock and returns the updated
// product. A delta that would take stock negative fails with
// InsufficientStockError and changes nothing.
func (s *InventoryService) AdjustQuantity(ctx context.Context, productID int64, delta int) (domain.Product, error) {
	if delta == 0 {
		return domain.Product{}, invalid("delta", "must not be zero")
	}
	_, err := s.Inv.Adjust(ctx, productID, delta)
	var short *repos.StockShortageError
	switch {
	case errors.As(err, &short):
		return domain.Product{}, &InsufficientStockError{ProductID: productID, Requested: -delta, Available: short.Available}
	case errors.Is(err, repos.ErrNotFound):
		return domain.Product{}, &ProductNotFoundError{ProductID: productID}
	case err != nil:
		return domain.Product{}, err
	}
	return s.Prods.GetActive(ctx, productID)
}

func (s *InventoryService) List(ctx context.Context) ([]repos.InventoryRow, error) {
	return s.Inv.ListAll(ctx)
}
