package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fieldserve/checkout-portal/internal/model"
)

// SessionOperations is the slice of the session service the handler needs.
type SessionOperations interface {
	View(ctx context.Context, token string) (model.TokenSession, error)
	Schedule(ctx context.Context, token string, date time.Time) (model.TokenSession, error)
	UpdateNotes(ctx context.Context, token, notes string) (model.TokenSession, error)
	UpdateServices(ctx context.Context, token, services string) (model.TokenSession, error)
	Cancel(ctx context.Context, token string) (model.TokenSession, error)
}

// InvoiceViewer loads the invoice fronted by a session token for the read
// path.
type InvoiceViewer interface {
	GetByToken(ctx context.Context, token string) (model.Invoice, error)
}

// SessionHandler serves the customer-facing session endpoints. Every
// mutation is funneled through the session service, whose lifecycle guard
// runs before any write.
type SessionHandler struct {
	Sessions SessionOperations
	Invoices InvoiceViewer
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions SessionOperations, invoices InvoiceViewer) *SessionHandler {
	if sessions == nil || invoices == nil {
		panic("nil dependency passed to NewSessionHandler")
	}
	return &SessionHandler{Sessions: sessions, Invoices: invoices}
}

type sessionView struct {
	Token            string          `json:"token"`
	Kind             string          `json:"kind"`
	Status           string          `json:"status"`
	InvoiceNumber    *string         `json:"invoice_number,omitempty"`
	ScheduledDate    *string         `json:"scheduled_date,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
	SelectedServices json.RawMessage `json:"selected_services,omitempty"`
	ExpiresAt        string          `json:"expires_at"`
}

func toSessionView(s model.TokenSession) sessionView {
	v := sessionView{
		Token:         s.Token,
		Kind:          string(s.Kind),
		Status:        string(s.Status),
		InvoiceNumber: s.InvoiceNumber,
		Notes:         s.Notes,
		ExpiresAt:     s.ExpiresAt.Format(time.RFC3339),
	}
	if s.ScheduledDate != nil {
		d := s.ScheduledDate.Format(time.RFC3339)
		v.ScheduledDate = &d
	}
	if s.SelectedServices != nil {
		v.SelectedServices = json.RawMessage(*s.SelectedServices)
	}
	return v
}

// GetSession handles GET /v1/sessions/:token.
func (h *SessionHandler) GetSession(c echo.Context) error {
	sess, err := h.Sessions.View(c.Request().Context(), c.Param("token"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionView(sess))
}

// GetInvoice handles GET /v1/invoices/:token. It returns the invoice view
// backing an invoice-payment session. Financial fields are read-only here.
func (h *SessionHandler) GetInvoice(c echo.Context) error {
	inv, err := h.Invoices.GetByToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return writeError(c, err)
	}
	view := echo.Map{
		"invoice_number": inv.InvoiceNumber,
		"customer_code":  inv.CustomerCode,
		"currency":       inv.Currency,
		"amount_due":     inv.AmountDue.String(),
		"amount_paid":    inv.AmountPaid.String(),
		"status":         string(inv.Status),
	}
	if inv.DatePaid != nil {
		view["date_paid"] = inv.DatePaid.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, view)
}

// Schedule handles POST /v1/sessions/:token/schedule. The body carries the
// chosen RFC3339 date. Only ACTIVE booking and work-order sessions may be
// scheduled.
func (h *SessionHandler) Schedule(c echo.Context) error {
	var body struct {
		ScheduledDate string `json:"scheduled_date" validate:"required"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scheduled_date is required"})
	}
	date, err := time.Parse(time.RFC3339, body.ScheduledDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scheduled_date must be RFC3339"})
	}
	sess, err := h.Sessions.Schedule(c.Request().Context(), c.Param("token"), date)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionView(sess))
}

// UpdateNotes handles PATCH /v1/sessions/:token/notes.
func (h *SessionHandler) UpdateNotes(c echo.Context) error {
	var body struct {
		Notes string `json:"notes" validate:"required"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "notes is required"})
	}
	sess, err := h.Sessions.UpdateNotes(c.Request().Context(), c.Param("token"), body.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionView(sess))
}

// UpdateServices handles PATCH /v1/sessions/:token/services. The selected
// services travel as an opaque JSON document; the portal stores and echoes
// it without interpreting line items.
func (h *SessionHandler) UpdateServices(c echo.Context) error {
	var body struct {
		SelectedServices json.RawMessage `json:"selected_services"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.SelectedServices) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "selected_services is required"})
	}
	sess, err := h.Sessions.UpdateServices(c.Request().Context(), c.Param("token"), string(body.SelectedServices))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionView(sess))
}

// Cancel handles POST /v1/sessions/:token/cancel.
func (h *SessionHandler) Cancel(c echo.Context) error {
	sess, err := h.Sessions.Cancel(c.Request().Context(), c.Param("token"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionView(sess))
}
