package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"tirepos/internal/domain"
	applog "tirepos/internal/log"
	"tirepos/internal/pricing"
	"tirepos/internal/services"
	"tirepos/internal/validate"
)

type SaleHandler struct {
	Sales *services.SaleService
}

type customItemRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

// saleItemRequest is either catalog-backed (productId) or custom (custom.name).
type saleItemRequest struct {
	ProductID  *int64             `json:"productId" validate:"omitempty,gt=0"`
	Custom     *customItemRequest `json:"custom"`
	Quantity   int                `json:"quantity" validate:"gte=1,lte=10000"`
	UnitPrice  amount             `json:"unitPrice" validate:"required,money"`
	PerItemTax amount             `json:"perItemTax" validate:"omitempty,money"`
	IsTaxable  *bool              `json:"isTaxable"`
}

type cartRequest struct {
	Discount  amount            `json:"discount"`
	LaborCost amount            `json:"laborCost"`
	Items     []saleItemRequest `json:"items" validate:"required,min=1,max=200,dive"`
}

type saleRequest struct {
	CustomerName  string            `json:"customerName" validate:"required,max=120"`
	CustomerPhone string            `json:"customerPhone" validate:"max=40"`
	CustomerEmail string            `json:"customerEmail" validate:"omitempty,email,max=120"`
	VehicleMake   string            `json:"vehicleMake" validate:"max=60"`
	VehicleModel  string            `json:"vehicleModel" validate:"max=60"`
	VehicleYear   string            `json:"vehicleYear" validate:"max=4"`
	Notes         string            `json:"notes" validate:"max=1000"`
	PaymentMethod string            `json:"paymentMethod" validate:"omitempty,oneof=cash card check"`
	Discount      amount            `json:"discount"`
	LaborCost     amount            `json:"laborCost"`
	Items         []saleItemRequest `json:"items" validate:"required,min=1,max=200,dive"`
}

type saleUpdateRequest struct {
	CustomerName  *string `json:"customerName" validate:"omitempty,min=1,max=120"`
	CustomerPhone *string `json:"customerPhone" validate:"omitempty,max=40"`
	CustomerEmail *string `json:"customerEmail" validate:"omitempty,email,max=120"`
	VehicleMake   *string `json:"vehicleMake" validate:"omitempty,max=60"`
	VehicleModel  *string `json:"vehicleModel" validate:"omitempty,max=60"`
	VehicleYear   *string `json:"vehicleYear" validate:"omitempty,max=4"`
	Notes         *string `json:"notes" validate:"omitempty,max=1000"`
	PaymentMethod *string `json:"paymentMethod" validate:"omitempty,oneof=cash card check"`
	PaymentStatus *string `json:"paymentStatus" validate:"omitempty,oneof=paid pending"`
}

func cartEntries(items []saleItemRequest) ([]services.CartEntry, error) {
	out := make([]services.CartEntry, 0, len(items))
	for i, it := range items {
		switch {
		case it.ProductID != nil && it.Custom != nil:
			return nil, &services.ValidationError{Field: fmt.Sprintf("items[%d]", i), Message: "set either productId or custom, not both"}
		case it.ProductID != nil:
			out = append(out, services.CatalogEntry{
				ProductID:  *it.ProductID,
				Quantity:   it.Quantity,
				UnitPrice:  string(it.UnitPrice),
				PerItemTax: string(it.PerItemTax),
			})
		case it.Custom != nil:
			out = append(out, services.CustomEntry{
				Name:      it.Custom.Name,
				Quantity:  it.Quantity,
				UnitPrice: string(it.UnitPrice),
				IsTaxable: it.IsTaxable != nil && *it.IsTaxable,
			})
		default:
			return nil, &services.ValidationError{Field: fmt.Sprintf("items[%d]", i), Message: "productId or custom is required"}
		}
	}
	return out, nil
}

// Create settles a sale. POST /api/v1/sales
func (h *SaleHandler) Create(c *fiber.Ctx) error {
	var req saleRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "sale.create", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "sale.create", errs)
	}
	entries, err := cartEntries(req.Items)
	if err != nil {
		return writeError(c, "sale.create", err)
	}

	sale, err := h.Sales.Create(c.UserContext(), services.SaleRequest{
		Customer: domain.Customer{
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			CustomerEmail: req.CustomerEmail,
			VehicleMake:   req.VehicleMake,
			VehicleModel:  req.VehicleModel,
			VehicleYear:   req.VehicleYear,
			Notes:         req.Notes,
		},
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Discount:      string(req.Discount),
		LaborCost:     string(req.LaborCost),
		Items:         entries,
	})
	if err != nil {
		return writeError(c, "sale.create", err)
	}

	applog.Audit(c, "sale.create", map[string]any{
		"invoice":        sale.InvoiceNumber,
		"items":          len(sale.Items),
		"grand_total":    pricing.Format(sale.GrandTotal),
		"payment_method": sale.PaymentMethod,
	})
	return c.Status(fiber.StatusCreated).JSON(toSaleView(sale))
}

// Quote prices a cart without committing. POST /api/v1/sales/quote
func (h *SaleHandler) Quote(c *fiber.Ctx) error {
	var req cartRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "sale.quote", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "sale.quote", errs)
	}
	entries, err := cartEntries(req.Items)
	if err != nil {
		return writeError(c, "sale.quote", err)
	}
	q, err := h.Sales.Quote(c.UserContext(), services.SaleRequest{
		Discount:  string(req.Discount),
		LaborCost: string(req.LaborCost),
		Items:     entries,
	})
	if err != nil {
		return writeError(c, "sale.quote", err)
	}
	return c.JSON(toQuoteView(q))
}

func (h *SaleHandler) List(c *fiber.Ctx) error {
	sales, err := h.Sales.List(c.UserContext(), validate.Limit(c.Query("limit"), 50, 500))
	if err != nil {
		return writeError(c, "sale.list", err)
	}
	out := make([]saleView, 0, len(sales))
	for _, s := range sales {
		out = append(out, toSaleView(s))
	}
	return c.JSON(out)
}

func (h *SaleHandler) Get(c *fiber.Ctx) error {
	invoice, ok := validate.Invoice(c.Params("invoice"))
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "SALE_NOT_FOUND", "sale not found", nil)
	}
	sale, err := h.Sales.Get(c.UserContext(), invoice)
	if err != nil {
		return writeError(c, "sale.get", err)
	}
	return c.JSON(toSaleView(sale))
}

// Update edits customer and payment metadata. Totals are never re-derived.
// PATCH /api/v1/sales/:invoice
func (h *SaleHandler) Update(c *fiber.Ctx) error {
	invoice, ok := validate.Invoice(c.Params("invoice"))
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "SALE_NOT_FOUND", "sale not found", nil)
	}
	var req saleUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "sale.update", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "sale.update", errs)
	}

	current, err := h.Sales.Get(c.UserContext(), invoice)
	if err != nil {
		return writeError(c, "sale.update", err)
	}
	customer := current.Customer
	setIf(&customer.CustomerName, req.CustomerName)
	setIf(&customer.CustomerPhone, req.CustomerPhone)
	setIf(&customer.CustomerEmail, req.CustomerEmail)
	setIf(&customer.VehicleMake, req.VehicleMake)
	setIf(&customer.VehicleModel, req.VehicleModel)
	setIf(&customer.VehicleYear, req.VehicleYear)
	setIf(&customer.Notes, req.Notes)

	u := services.SaleUpdate{Customer: &customer}
	if req.PaymentMethod != nil {
		m := domain.PaymentMethod(*req.PaymentMethod)
		u.PaymentMethod = &m
	}
	if req.PaymentStatus != nil {
		s := domain.PaymentStatus(*req.PaymentStatus)
		u.PaymentStatus = &s
	}

	sale, err := h.Sales.UpdateMeta(c.UserContext(), invoice, u)
	if err != nil {
		return writeError(c, "sale.update", err)
	}
	applog.Audit(c, "sale.update", map[string]any{
		"invoice":        sale.InvoiceNumber,
		"payment_method": sale.PaymentMethod,
		"payment_status": sale.PaymentStatus,
	})
	return c.JSON(toSaleView(sale))
}

// Receipt renders the printable invoice. GET /sales/:invoice/receipt
func (h *SaleHandler) Receipt(c *fiber.Ctx) error {
	invoice, ok := validate.Invoice(c.Params("invoice"))
	if !ok {
		return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "Invoice not found"})
	}
	sale, err := h.Sales.Get(c.UserContext(), invoice)
	if err != nil {
		if !errors.Is(err, services.ErrSaleNotFound) {
			applog.Error(c, "receipt.load", err, nil)
		}
		return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "Invoice not found"})
	}
	return render(c, "receipt", fiber.Map{"Sale": toSaleView(sale)})
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
