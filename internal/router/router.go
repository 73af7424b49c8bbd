// Package router defines how HTTP routes are registered for the portal.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/fieldserve/checkout-portal/internal/handler"
	"github.com/fieldserve/checkout-portal/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterCustomer registers the capability-token customer surface. Holding
// a session token is the only credential: no JWT middleware is applied here.
// The read endpoints sit behind the response cache; the payment endpoints
// sit behind the rate limiter so the validate callback cannot be hammered.
func RegisterCustomer(e *echo.Echo, s *handler.SessionHandler, p *handler.PaymentHandler, cache, ratelimit echo.MiddlewareFunc) {
	g := e.Group("/v1")

	g.GET("/sessions/:token", s.GetSession, cache)
	g.POST("/sessions/:token/schedule", s.Schedule)
	g.PATCH("/sessions/:token/notes", s.UpdateNotes)
	g.PATCH("/sessions/:token/services", s.UpdateServices)
	g.POST("/sessions/:token/cancel", s.Cancel)

	g.GET("/invoices/:token", s.GetInvoice, cache)
	g.POST("/invoices/:token/payment/initialize", p.Initialize, ratelimit)

	// The validate callback is relayed by the customer's browser after the
	// hosted widget completes, so it lives on the public surface.
	g.POST("/payments/validate", p.Validate, ratelimit)
}

// RegisterOperator registers the internal operator surface behind JWT
// authentication and the OPERATOR role.
func RegisterOperator(e *echo.Echo, o *handler.OperatorHandler, jwtSecret string) {
	e.POST("/v1/operator/login", o.Login)

	g := e.Group("/v1/operator")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(handler.RoleOperator))
	g.GET("/transactions/unreconciled", o.ListUnreconciled)
}
