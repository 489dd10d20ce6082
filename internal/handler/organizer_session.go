package handler // handler package contains organizer-facing session handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/model"
	"github.com/avelinec/ticket-office/internal/repository"
	"github.com/avelinec/ticket-office/internal/service"
)

// OrganizerHandler exposes the endpoints an organizer uses to manage
// sessions and ticket generators.  All routes behind it require the
// ORGANIZER role.
type OrganizerHandler struct {
	Svc *service.Ticketing
}

func NewOrganizerHandler(svc *service.Ticketing) *OrganizerHandler {
	if svc == nil {
		panic("nil service passed to NewOrganizerHandler")
	}
	return &OrganizerHandler{Svc: svc}
}

// CreateSession handles POST /v1/sessions and creates a new session
// owned by the authenticated organizer.
func (h *OrganizerHandler) CreateSession(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Name        string     `json:"name"`
		Description *string    `json:"description"`
		StartsAt    time.Time  `json:"starts_at"`
		EndsAt      *time.Time `json:"ends_at"`
		PriceCents  int64      `json:"price_cents"`
		Capacity    int64      `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	if body.Capacity < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be at least 1"})
	}
	if body.PriceCents < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_cents must not be negative"})
	}
	if body.StartsAt.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at is required"})
	}

	sess := &model.Session{
		OrganizerID:       organizerID,
		Name:              name,
		Description:       body.Description,
		StartsAt:          body.StartsAt.UTC(),
		PriceCents:        body.PriceCents,
		RemainingCapacity: body.Capacity,
	}
	if body.EndsAt != nil {
		t := body.EndsAt.UTC()
		sess.EndsAt = &t
	}
	if err := h.Svc.CreateSession(c.Request().Context(), sess); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}
	return c.JSON(http.StatusCreated, viewSession(sess))
}

// ListMySessions handles GET /v1/my/sessions and returns the sessions
// owned by the authenticated organizer.
func (h *OrganizerHandler) ListMySessions(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Svc.OrganizerSessions(c.Request().Context(), organizerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": viewSessions(items)})
}

// DeleteSession handles DELETE /v1/sessions/:id.  Deletion cascades to
// the session's generators, tickets and purchases, but is refused with
// 409 while any minted ticket is still usable.
func (h *OrganizerHandler) DeleteSession(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	switch err := h.Svc.DeleteSession(c.Request().Context(), organizerID, id); {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "session still has usable tickets"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
}

// ListPaidPurchases handles GET /v1/sessions/:id/purchases and returns
// the confirmed sales of a session the organizer owns.
func (h *OrganizerHandler) ListPaidPurchases(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	items, err := h.Svc.SessionPaidPurchases(c.Request().Context(), organizerID, id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"items": viewPurchases(items)})
	case errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
}
