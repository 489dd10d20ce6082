package handler // handler package contains organizer-facing generator handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/model"
	"github.com/avelinec/ticket-office/internal/repository"
)

// CreateGenerator handles POST /v1/sessions/:id/generators.  The new
// generator immediately mints one ticket for every already-paid
// purchase of the session, so late-added ticket classes reach buyers
// who paid before the class existed.
func (h *OrganizerHandler) CreateGenerator(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Name       string    `json:"name"`
		MaxUse     int64     `json:"max_use"`
		Expiration time.Time `json:"expiration"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	if body.MaxUse < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_use must be at least 1"})
	}
	if body.Expiration.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "expiration is required"})
	}

	g := &model.TicketGenerator{
		SessionID:  sessionID,
		Name:       name,
		MaxUse:     body.MaxUse,
		Expiration: body.Expiration.UTC(),
	}
	minted, err := h.Svc.CreateGenerator(c.Request().Context(), organizerID, g)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{
			"generator": viewGenerator(g),
			"minted":    viewTickets(minted, time.Now().UTC()),
		})
	case errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create generator"})
	}
}

// ListGenerators handles GET /v1/sessions/:id/generators.
func (h *OrganizerHandler) ListGenerators(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	items, err := h.Svc.SessionGenerators(c.Request().Context(), organizerID, sessionID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"items": viewGenerators(items)})
	case errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
}

// DeleteGenerator handles DELETE /v1/generators/:id and removes the
// generator together with every ticket minted from it.
func (h *OrganizerHandler) DeleteGenerator(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	switch err := h.Svc.DeleteGenerator(c.Request().Context(), organizerID, id); {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, repository.ErrGeneratorNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "generator not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
}

