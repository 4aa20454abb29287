package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	applog "tirepos/internal/log"
	"tirepos/internal/services"
	"tirepos/internal/validate"
)

// ErrorBody is the canonical error payload: {"error": {...}}.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func jsonError(c *fiber.Ctx, status int, code, message string, details any) error {
	return c.Status(status).JSON(fiber.Map{
		"error": ErrorBody{Code: code, Message: message, Details: details},
	})
}

func badRequest(c *fiber.Ctx, action string, fields []validate.FieldError) error {
	applog.Security(c, "validation.fail", map[string]any{"action": action, "fields": fields})
	return jsonError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "request validation failed", fields)
}

func malformed(c *fiber.Ctx, action string, err error) error {
	applog.Security(c, "validation.fail", map[string]any{"action": action, "error": err.Error()})
	return jsonError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", nil)
}

// writeError maps service errors onto HTTP responses. Unknown errors are
// logged with detail and answered with a generic 500.
func writeError(c *fiber.Ctx, action string, err error) error {
	var (
		ve    *services.ValidationError
		nf    *services.ProductNotFoundError
		stock *services.InsufficientStockError
	)
	switch {
	case errors.As(err, &ve):
		applog.Security(c, "validation.fail", map[string]any{"action": action, "field": ve.Field})
		return jsonError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", ve.Error(),
			[]validate.FieldError{{Field: ve.Field, Rule: "invalid", Message: ve.Message}})
	case errors.As(err, &stock):
		applog.Info(c, action+".stock", map[string]any{"product_id": stock.ProductID, "requested": stock.Requested, "available": stock.Available})
		return jsonError(c, fiber.StatusConflict, "INSUFFICIENT_STOCK", stock.Error(), fiber.Map{
			"productId": stock.ProductID,
			"requested": stock.Requested,
			"available": stock.Available,
		})
	case errors.As(err, &nf):
		return jsonError(c, fiber.StatusNotFound, "PRODUCT_NOT_FOUND", nf.Error(), fiber.Map{"productId": nf.ProductID})
	case errors.Is(err, services.ErrProductNotFound):
		return jsonError(c, fiber.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, services.ErrSaleNotFound):
		return jsonError(c, fiber.StatusNotFound, "SALE_NOT_FOUND", "sale not found", nil)
	case errors.Is(err, services.ErrDuplicateSKU):
		return jsonError(c, fiber.StatusConflict, "DUPLICATE_SKU", "a product with this SKU already exists", nil)
	case errors.Is(err, services.ErrInvoiceConflict):
		applog.Error(c, action+".fail", err, nil)
		c.Set(fiber.HeaderRetryAfter, "1")
		return jsonError(c, fiber.StatusServiceUnavailable, "INVOICE_CONFLICT", "could not allocate an invoice number, please retry", nil)
	case errors.Is(err, services.ErrCommitFailure):
		// detail was logged by the service
		return jsonError(c, fiber.StatusInternalServerError, "SALE_FAILED", "failed to create sale", nil)
	}
	applog.Error(c, action+".fail", err, nil)
	return jsonError(c, fiber.StatusInternalServerError, "INTERNAL", "something went wrong, please try again", nil)
}

// ErrorHandler is the fiber-level fallback. It logs the cause and answers
// without leaking internals: JSON under /api, a rendered page elsewhere.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Something went wrong. Please try again."
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		status = fe.Code
		message = fe.Message
	}
	if status >= fiber.StatusInternalServerError {
		applog.Error(c, "server.error", err, nil)
	}

	if strings.HasPrefix(c.Path(), "/api/") {
		return jsonError(c, status, codeFor(status), message, nil)
	}
	if rerr := c.Status(status).Render("notfound", fiber.Map{"Message": message}); rerr != nil {
		return c.Status(status).SendString(message)
	}
	return nil
}

func codeFor(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	if status < fiber.StatusInternalServerError {
		return "BAD_REQUEST"
	}
	return "INTERNAL"
}
