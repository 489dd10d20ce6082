package handler // handler package contains unauthenticated browse handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/repository"
	"github.com/avelinec/ticket-office/internal/service"
)

// PublicHandler exposes read-only browse endpoints that require no
// authentication, so prospective buyers can inspect sessions before
// registering.
type PublicHandler struct {
	Svc *service.Ticketing
}

func NewPublicHandler(svc *service.Ticketing) *PublicHandler {
	if svc == nil {
		panic("nil service passed to NewPublicHandler")
	}
	return &PublicHandler{Svc: svc}
}

// ListSessions handles GET /v1/sessions and returns every session.
// RemainingCapacity in the response is a snapshot: it may already be
// stale by the time a buyer reserves, which is why Reserve re-checks
// under the row lock.
func (h *PublicHandler) ListSessions(c echo.Context) error {
	items, err := h.Svc.Sessions(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": viewSessions(items)})
}

// GetSession handles GET /v1/sessions/:id.
func (h *PublicHandler) GetSession(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	sess, err := h.Svc.SessionByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, viewSession(sess))
}
