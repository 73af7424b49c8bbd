package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/service"
)

// PaymentInitializer opens payment attempts; PaymentValidator reconciles
// reported outcomes. Both are satisfied by the service layer.
type PaymentInitializer interface {
	Initialize(ctx context.Context, in service.InitializeInput) (service.InitializeResult, error)
}

type PaymentValidator interface {
	Validate(ctx context.Context, in service.ValidateInput) (service.ValidateResult, error)
}

// PaymentHandler serves the payment endpoints relayed from the hosted
// widget.
type PaymentHandler struct {
	Init      PaymentInitializer
	Validator PaymentValidator
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(init PaymentInitializer, validator PaymentValidator) *PaymentHandler {
	if init == nil || validator == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{Init: init, Validator: validator}
}

// Initialize handles POST /v1/invoices/:token/payment/initialize. The
// response carries the checkout token only; the verification secret never
// leaves the server.
func (h *PaymentHandler) Initialize(c echo.Context) error {
	var body struct {
		ConfirmationScreen bool `json:"confirmation_screen"`
	}
	// Body is optional; an empty POST defaults to no confirmation screen.
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Init.Initialize(c.Request().Context(), service.InitializeInput{
		Token:              c.Param("token"),
		ConfirmationScreen: body.ConfirmationScreen,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"checkout_token": res.CheckoutToken})
}

// Validate handles POST /v1/payments/validate, the relayed widget callback.
//
// A hash mismatch is NOT a transport failure: the response is 200 with
// "success": false, and the mismatch is logged server-side. Integrating
// clients must check the success flag, never just the status code.
func (h *PaymentHandler) Validate(c echo.Context) error {
	var body struct {
		RawDataResponse helcim.Outcome `json:"rawDataResponse" validate:"required"`
		CheckoutToken   string         `json:"checkoutToken" validate:"required"`
		SecretToken     string         `json:"secretToken" validate:"required"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rawDataResponse, checkoutToken and secretToken are required"})
	}
	res, err := h.Validator.Validate(c.Request().Context(), service.ValidateInput{
		RawOutcome:    body.RawDataResponse,
		CheckoutToken: body.CheckoutToken,
		SecretToken:   body.SecretToken,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":           res.Success,
		"already_processed": res.AlreadyProcessed,
		"transaction_id":    res.TransactionID,
		"payment_type":      string(res.PaymentType),
		"status":            res.Status,
	})
}
