package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Register mounts the API and receipt routes. idem guards sale creation and
// may be nil.
func Register(app *fiber.App, d *Deps, idem fiber.Handler) {
	if idem == nil {
		idem = func(c *fiber.Ctx) error { return c.Next() }
	}

	api := app.Group("/api/v1")

	api.Get("/sales", d.SaleHandler.List)
	api.Post("/sales/quote", d.SaleHandler.Quote)
	api.Post("/sales", idem, d.SaleHandler.Create)
	api.Get("/sales/:invoice", d.SaleHandler.Get)
	api.Patch("/sales/:invoice", d.SaleHandler.Update)

	api.Get("/products", d.ProductHandler.List)
	api.Post("/products", d.ProductHandler.Create)
	api.Post("/products/import", d.ProductHandler.ImportRows)
	api.Get("/products/:id", d.ProductHandler.Get)
	api.Put("/products/:id", d.ProductHandler.Update)
	api.Delete("/products/:id", d.ProductHandler.Delete)
	api.Post("/products/:id/adjust", d.InventoryHandler.Adjust)
	api.Get("/products/:id/availability", d.InventoryHandler.Check)
	api.Get("/inventory", d.InventoryHandler.List)

	api.Get("/categories", d.CategoryHandler.List)
	api.Post("/categories", d.CategoryHandler.Create)

	api.Get("/settings/tax-rate", d.SettingsHandler.GetTaxRate)
	api.Put("/settings/tax-rate", d.SettingsHandler.PutTaxRate)

	app.Get("/sales/:invoice/receipt", d.SaleHandler.Receipt)
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
}
