package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "tirepos/internal/log"
	"tirepos/internal/services"
	"tirepos/internal/validate"
)

type InventoryHandler struct {
	Inv *services.InventoryService
}

type adjustRequest struct {
	Delta  int    `json:"delta" validate:"required,gte=-100000,lte=100000"`
	Reason string `json:"reason" validate:"max=200"`
}

// Check reports stock status. GET /api/v1/products/:id/availability
func (h *InventoryHandler) Check(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "product"})
		return jsonError(c, fiber.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	}
	avail, err := h.Inv.CheckAvailability(c.UserContext(), id)
	if err != nil {
		return writeError(c, "inventory.check", err)
	}
	return c.JSON(avail)
}

// Adjust applies a stock delta. POST /api/v1/products/:id/adjust
func (h *InventoryHandler) Adjust(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	}
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "inventory.adjust", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "inventory.adjust", errs)
	}
	p, err := h.Inv.AdjustQuantity(c.UserContext(), id, req.Delta)
	if err != nil {
		return writeError(c, "inventory.adjust", err)
	}
	applog.Audit(c, "inventory.adjust", map[string]any{
		"product_id": id,
		"delta":      req.Delta,
		"new_qty":    p.Quantity,
		"reason":     req.Reason,
	})
	return c.JSON(toProductView(p))
}

// List returns stock for every active product. GET /api/v1/inventory
func (h *InventoryHandler) List(c *fiber.Ctx) error {
	rows, err := h.Inv.List(c.UserContext())
	if err != nil {
		return writeError(c, "inventory.list", err)
	}
	return c.JSON(rows)
}
