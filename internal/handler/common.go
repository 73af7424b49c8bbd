// Package handler contains the HTTP handlers for the checkout portal. The
// customer surface is capability-token addressed: whoever holds a session
// token may read and mutate that session, and no other authentication
// exists. The operator surface sits behind JWT middleware.
package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/repository"
	"github.com/fieldserve/checkout-portal/internal/service"
)

var validate = validator.New()

// writeError translates sentinel errors into HTTP responses. Expiry and
// wrong-state rejections are reported distinctly so the page can render the
// right message; upstream and persistence failures collapse to a generic
// "payment could not be completed" for the customer, with the detail kept in
// server logs only.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	case errors.Is(err, service.ErrSessionExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "session expired"})
	case errors.Is(err, service.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "session is not in a valid state for this operation"})
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrInvoiceNotFound),
		errors.Is(err, repository.ErrTransactionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	default:
		var upstream *helcim.UpstreamError
		if errors.As(err, &upstream) {
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment could not be completed"})
		}
		var persistence *service.PersistenceError
		if errors.As(err, &persistence) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment could not be completed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
