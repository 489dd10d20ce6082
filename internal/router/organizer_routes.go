package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/handler"
	"github.com/avelinec/ticket-office/internal/middleware"
	"github.com/avelinec/ticket-office/internal/model"
)

// RegisterOrganizer registers ORGANIZER-scoped endpoints under /v1.
// All routes require a valid JWT and the ORGANIZER role.
func RegisterOrganizer(e *echo.Echo, o *handler.OrganizerHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOrganizer),
	)

	// ---- Sessions ----
	g.POST("/sessions", o.CreateSession)
	g.GET("/my-sessions", o.ListMySessions)
	g.DELETE("/sessions/:id", o.DeleteSession)
	g.GET("/sessions/:id/purchases", o.ListPaidPurchases)

	// ---- Generators ----
	g.POST("/sessions/:id/generators", o.CreateGenerator)
	g.GET("/sessions/:id/generators", o.ListGenerators)
	g.DELETE("/generators/:id", o.DeleteGenerator)
}
