package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/handler"
	"github.com/avelinec/ticket-office/internal/middleware"
	"github.com/avelinec/ticket-office/internal/model"
)

// RegisterScanner registers SCANNER-scoped endpoints under /v1.  The
// optional limit middleware throttles secret lookups so the scan
// routes cannot be used to enumerate ticket secrets; pass nil to skip
// it.
func RegisterScanner(e *echo.Echo, s *handler.ScanHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	mws := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleScanner),
	}
	if limit != nil {
		mws = append(mws, limit)
	}
	g := e.Group("/v1", mws...)

	g.GET("/scan/:secret", s.Peek)
	g.POST("/scan/:secret", s.Scan)
	g.GET("/generators/:id/tags", s.ListTags)
	g.GET("/generators/:id/tags/:tag", s.ListTicketsByTag)
}
