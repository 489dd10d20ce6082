package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/handler"
	"github.com/avelinec/ticket-office/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check
// used by load balancers to verify the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers authentication routes and the authenticated
// /v1/me endpoint.  Unauthenticated operations live under /v1/auth;
// /v1/me requires a valid access token of any role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers the unauthenticated browse endpoints.  The
// optional cache middleware serves repeated session listings from
// Redis; pass nil to register the routes uncached.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	mws := []echo.MiddlewareFunc{}
	if cache != nil {
		mws = append(mws, cache)
	}
	e.GET("/v1/sessions", p.ListSessions, mws...)
	e.GET("/v1/sessions/:id", p.GetSession, mws...)
}

// RegisterPayment registers the payment-provider webhook.  It carries
// no JWT middleware: the handler authenticates the caller with the
// shared webhook secret.
func RegisterPayment(e *echo.Echo, p *handler.PaymentHandler) {
	e.POST("/v1/payment/callback", p.Callback)
}
