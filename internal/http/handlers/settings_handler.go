package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	applog "tirepos/internal/log"
	"tirepos/internal/repos"
	"tirepos/internal/validate"
)

var maxTaxRate = decimal.NewFromInt(100)

type SettingsHandler struct {
	Settings       *repos.SettingsRepo
	DefaultTaxRate decimal.Decimal
}

type taxRateRequest struct {
	Rate amount `json:"rate" validate:"required,money"`
}

// GetTaxRate returns the live global tax percentage. GET /api/v1/settings/tax-rate
func (h *SettingsHandler) GetTaxRate(c *fiber.Ctx) error {
	rate, err := h.Settings.GlobalTaxRate(c.UserContext(), h.DefaultTaxRate)
	if err != nil {
		return writeError(c, "settings.tax_rate.get", err)
	}
	return c.JSON(fiber.Map{"rate": rate.String()})
}

// PutTaxRate changes the rate for future sales only; committed sales keep
// their snapshot.
func (h *SettingsHandler) PutTaxRate(c *fiber.Ctx) error {
	var req taxRateRequest
	if err := c.BodyParser(&req); err != nil {
		return malformed(c, "settings.tax_rate", err)
	}
	if errs := validate.Struct(req); errs != nil {
		return badRequest(c, "settings.tax_rate", errs)
	}
	rate := parseMoney(req.Rate)
	if rate.GreaterThan(maxTaxRate) {
		return badRequest(c, "settings.tax_rate", []validate.FieldError{{Field: "rate", Rule: "lte", Message: "must be at most 100"}})
	}
	if err := h.Settings.SetGlobalTaxRate(c.UserContext(), rate); err != nil {
		return writeError(c, "settings.tax_rate", err)
	}
	applog.Audit(c, "settings.tax_rate", map[string]any{"rate": rate.String()})
	return c.JSON(fiber.Map{"rate": rate.String()})
}
