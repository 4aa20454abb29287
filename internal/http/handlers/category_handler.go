package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tirepos/internal/log"
	"tirepos/internal/services"
	"tirepos/internal/validate"
)

type CategoryHandler struct {
	Catalog *services.CatalogService
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=500"`
}

func (h *CategoryHandler) List(c *fiber.Ctx) error {
	cats, err := h.Catalog.ListCategories(c.UserContext())
	if err != nil {
		return writeError(c, "category.list", err)
	}
	return c.JSON(cats)
}

func (h *CategoryHandler) Create(c *fiber.Ctx) error {
	var req categoryRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "category.create", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "category.create", errs)
	}
	cat, err := h.Catalog.CreateCategory(c.UserContext(), req.Name, req.Description)
	if err != nil {
		return writeError(c, "category.create", err)
	}
	log.Audit(c, "category.create", map[string]any{"category_id": cat.ID, "name": cat.Name})
	return c.Status(fiber.StatusCreated).JSON(cat)
}
