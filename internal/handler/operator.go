package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/model"
	"github.com/fieldserve/checkout-portal/internal/utils"
)

// RoleOperator is the role claim carried by operator access tokens.
const RoleOperator = "OPERATOR"

// UnreconciledLister exposes the payment attempts the processor may have
// settled but the portal never validated.
type UnreconciledLister interface {
	ListUnreconciled(ctx context.Context, now time.Time) ([]model.PaymentTransaction, error)
}

// OperatorHandler serves the internal operator surface: login and the
// reconciliation-gap listing. A single operator account is configured from
// the environment; this surface is for diagnostics, not customer traffic.
type OperatorHandler struct {
	Email        string
	PasswordHash string
	JWTSecret    string
	AccessTTLMin int
	Txns         UnreconciledLister
	Clock        clock.Clock
}

// NewOperatorHandler constructs an OperatorHandler.
func NewOperatorHandler(email, passwordHash, jwtSecret string, accessTTLMin int, txns UnreconciledLister, clk clock.Clock) *OperatorHandler {
	if txns == nil || clk == nil {
		panic("nil dependency passed to NewOperatorHandler")
	}
	return &OperatorHandler{
		Email:        email,
		PasswordHash: passwordHash,
		JWTSecret:    jwtSecret,
		AccessTTLMin: accessTTLMin,
		Txns:         txns,
		Clock:        clk,
	}
}

// Login handles POST /v1/operator/login. Credentials are checked against the
// configured operator email and bcrypt hash; a signed access token is
// returned on success.
func (h *OperatorHandler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	if body.Email != h.Email || !utils.VerifyPassword(h.PasswordHash, body.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.JWTSecret, h.Email, RoleOperator, h.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": tok.Token,
		"expires_at":   tok.Exp.Format(time.RFC3339),
	})
}

// ListUnreconciled handles GET /v1/operator/transactions/unreconciled. It
// returns PENDING transactions whose verification secret has expired,
// likely orphans on the processor side. Verification secrets are stripped
// by the store before they reach this handler.
func (h *OperatorHandler) ListUnreconciled(c echo.Context) error {
	txns, err := h.Txns.ListUnreconciled(c.Request().Context(), h.Clock.Now())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]echo.Map, 0, len(txns))
	for _, t := range txns {
		out = append(out, echo.Map{
			"transaction_id":   t.TransactionID,
			"checkout_token":   t.CheckoutToken,
			"invoice_number":   t.InvoiceNumber,
			"customer_code":    t.CustomerCode,
			"amount":           t.Amount.String(),
			"currency":         t.Currency,
			"status":           t.Status,
			"token_expires_at": t.TokenExpiresAt.Format(time.RFC3339),
			"created_at":       t.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": out})
}
