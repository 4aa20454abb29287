package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tirepos/internal/domain"
	"tirepos/internal/log"
	"tirepos/internal/services"
	"tirepos/internal/validate"
)

type ProductHandler struct {
	Catalog *services.CatalogService
	Import  *services.ImportService
}

type productRequest struct {
	SKU          string `json:"sku" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=200"`
	CategoryID   *int64 `json:"categoryId" validate:"omitempty,gt=0"`
	Condition    string `json:"condition" validate:"omitempty,oneof=new used refurbished"`
	Quantity     int    `json:"quantity" validate:"gte=0"`
	CostPrice    amount `json:"costPrice" validate:"omitempty,money"`
	SellingPrice amount `json:"sellingPrice" validate:"required,money"`
	PerItemTax   amount `json:"perItemTax" validate:"omitempty,money"`
}

func (r productRequest) product() domain.Product {
	return domain.Product{
		SKU:          r.SKU,
		Name:         r.Name,
		CategoryID:   r.CategoryID,
		Condition:    domain.Condition(r.Condition),
		Quantity:     r.Quantity,
		CostPrice:    parseMoney(r.CostPrice),
		SellingPrice: parseMoney(r.SellingPrice),
		PerItemTax:   parseMoney(r.PerItemTax),
	}
}

// List returns active products. GET /api/v1/products?q=&categoryId=&condition=&page=&limit=
func (h *ProductHandler) List(c *fiber.Ctx) error {
	var q string
	if raw := c.Query("q"); raw != "" {
		var ok bool
		if q, ok = validate.Q(raw); !ok {
			log.Security(c, "validation.fail", map[string]any{"field": "q"})
			return badRequest(c, "product.list", []validate.FieldError{{Field: "q", Rule: "q", Message: "use letters, digits, spaces and - _ ' / . only"}})
		}
	}
	var categoryID int64
	if raw := c.Query("categoryId"); raw != "" {
		id, ok := validate.ID(raw)
		if !ok {
			return badRequest(c, "product.list", []validate.FieldError{{Field: "categoryId", Rule: "gt", Message: "must be a positive id"}})
		}
		categoryID = id
	}
	var cond domain.Condition
	if raw := c.Query("condition"); raw != "" {
		v, ok := validate.Condition(raw)
		if !ok {
			return badRequest(c, "product.list", []validate.FieldError{{Field: "condition", Rule: "oneof", Message: "must be one of: new used refurbished"}})
		}
		cond = domain.Condition(v)
	}
	page := validate.Limit(c.Query("page"), 1, 10000)
	limit := validate.Limit(c.Query("limit"), 50, 200)

	products, err := h.Catalog.Search(c.UserContext(), q, categoryID, cond, page, limit)
	if err != nil {
		return writeError(c, "product.list", err)
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, toProductView(p))
	}
	return c.JSON(out)
}

func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "product"})
		return jsonError(c, fiber.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	}
	p, err := h.Catalog.GetProduct(c.UserContext(), id)
	if err != nil {
		return writeError(c, "product.get", err)
	}
	return c.JSON(toProductView(p))
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "product.create", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "product.create", errs)
	}
	p, err := h.Catalog.CreateProduct(c.UserContext(), req.product())
	if err != nil {
		return writeError(c, "product.create", err)
	}
	log.Audit(c, "product.create", map[string]any{"product_id": p.ID, "sku": p.SKU, "qty": p.Quantity})
	return c.Status(fiber.StatusCreated).JSON(toProductView(p))
}

// Update edits catalog fields; quantity in the body is ignored.
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	}
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "product.update", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "product.update", errs)
	}
	in := req.product()
	in.ID = id
	p, err := h.Catalog.UpdateProduct(c.UserContext(), in)
	if err != nil {
		return writeError(c, "product.update", err)
	}
	log.Audit(c, "product.update", map[string]any{"product_id": p.ID, "sku": p.SKU})
	return c.JSON(toProductView(p))
}

// Delete soft-deletes a product. DELETE /api/v1/products/:id
func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	}
	if err := h.Catalog.DeleteProduct(c.UserContext(), id); err != nil {
		return writeError(c, "product.delete", err)
	}
	log.Audit(c, "product.delete", map[string]any{"product_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

type importRequest struct {
	Rows []services.ImportRow `json:"rows" validate:"required,min=1,max=5000"`
}

// ImportRows upserts already-parsed rows. POST /api/v1/products/import
func (h *ProductHandler) ImportRows(c *fiber.Ctx) error {
	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "product.import", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "product.import", errs)
	}
	res, err := h.Import.Import(c.UserContext(), req.Rows)
	if err != nil {
		return writeError(c, "product.import", err)
	}
	log.Audit(c, "product.import", map[string]any{
		"batch_id": res.BatchID,
		"imported": res.Imported,
		"updated":  res.Updated,
		"skipped":  res.Skipped,
	})
	return c.JSON(res)
}
