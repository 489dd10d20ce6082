package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/handler"
	"github.com/avelinec/ticket-office/internal/middleware"
	"github.com/avelinec/ticket-office/internal/model"
)

// RegisterBuyer registers BUYER-scoped endpoints under /v1.  The
// optional limit middleware rate-limits reservation attempts, which
// spike when a popular session opens; pass nil to skip it.
func RegisterBuyer(e *echo.Echo, b *handler.BuyerHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleBuyer),
	)

	if limit != nil {
		g.POST("/sessions/:id/purchases", b.Reserve, limit)
	} else {
		g.POST("/sessions/:id/purchases", b.Reserve)
	}
	g.GET("/my-purchases", b.ListMyPurchases)
	g.GET("/my-tickets", b.ListMyTickets)
	g.GET("/tickets/:id/secret", b.GetTicketSecret)
}
