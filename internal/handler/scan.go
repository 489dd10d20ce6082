package handler // handler package contains scanner-facing endpoints

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/repository"
	"github.com/avelinec/ticket-office/internal/service"
)

// ScanHandler exposes the door-side protocol.  Both routes key on the
// ticket's secret: possession of the secret is the authorization to
// inspect and redeem the ticket, which is why these routes also sit
// behind the SCANNER role and a rate limit.
type ScanHandler struct {
	Svc *service.Ticketing
}

func NewScanHandler(svc *service.Ticketing) *ScanHandler {
	if svc == nil {
		panic("nil service passed to NewScanHandler")
	}
	return &ScanHandler{Svc: svc}
}

// Peek handles GET /v1/scan/:secret and shows the ticket without
// consuming a use, for the scanner's confirmation screen.
func (h *ScanHandler) Peek(c echo.Context) error {
	t, err := h.Svc.TicketBySecret(c.Request().Context(), c.Param("secret"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, viewTicket(t, time.Now().UTC()))
	case errors.Is(err, service.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
}

// Scan handles POST /v1/scan/:secret and consumes one use of the
// ticket, recording the tag in its scan log.  The three failure modes
// are distinguished so door staff see why entry was refused: 404 for
// an unknown secret, 410 for an expired ticket, 409 for a spent one.
func (h *ScanHandler) Scan(c echo.Context) error {
	var body struct {
		Tag string `json:"tag"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Tag == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tag is required"})
	}

	t, err := h.Svc.Scan(c.Request().Context(), c.Param("secret"), body.Tag)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, viewTicket(t, time.Now().UTC()))
	case errors.Is(err, service.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, service.ErrTicketExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "ticket has expired"})
	case errors.Is(err, service.ErrTicketExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ticket has no scans left"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "scan failed"})
	}
}

// ListTags handles GET /v1/generators/:id/tags and returns the
// distinct tags recorded across the generator's tickets, so door
// staff can see which checkpoints a ticket class passes through.
func (h *ScanHandler) ListTags(c echo.Context) error {
	id, ok := h.generatorID(c)
	if !ok {
		return nil
	}
	tags, err := h.Svc.GeneratorTags(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"tags": tags})
}

// ListTicketsByTag handles GET /v1/generators/:id/tags/:tag and
// returns the generator's tickets whose scan log contains the tag
// ("who already collected this perk").
func (h *ScanHandler) ListTicketsByTag(c echo.Context) error {
	id, ok := h.generatorID(c)
	if !ok {
		return nil
	}
	items, err := h.Svc.TicketsByTag(c.Request().Context(), id, c.Param("tag"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": viewTickets(items, time.Now().UTC())})
}

// generatorID parses the :id param and checks the generator exists,
// writing the error response itself when it does not.
func (h *ScanHandler) generatorID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
		return 0, false
	}
	if _, err := h.Svc.GeneratorByID(c.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrGeneratorNotFound) {
			_ = c.JSON(http.StatusNotFound, echo.Map{"error": "generator not found"})
		} else {
			_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
		}
		return 0, false
	}
	return id, true
}
