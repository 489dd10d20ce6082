package handler // handler package contains buyer-facing purchase and ticket handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/repository"
	"github.com/avelinec/ticket-office/internal/service"
)

// BuyerHandler exposes the endpoints a buyer uses to reserve a place
// and inspect their purchases and tickets.
type BuyerHandler struct {
	Svc *service.Ticketing
}

func NewBuyerHandler(svc *service.Ticketing) *BuyerHandler {
	if svc == nil {
		panic("nil service passed to NewBuyerHandler")
	}
	return &BuyerHandler{Svc: svc}
}

// Reserve handles POST /v1/sessions/:id/reserve.  On success the buyer
// holds one place for the hold window and receives the checkout URL
// where payment completes.  A full session answers 409; the buyer may
// retry later, once other holds expire and are reclaimed.
func (h *BuyerHandler) Reserve(c echo.Context) error {
	buyerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	res, err := h.Svc.Reserve(c.Request().Context(), sessionID, buyerID)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{
			"purchase":     viewPurchase(res.Purchase),
			"checkout_url": res.CheckoutURL,
		})
	case errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, service.ErrCapacityExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "all places have been sold"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reserve failed"})
	}
}

// ListMyPurchases handles GET /v1/my/purchases.
func (h *BuyerHandler) ListMyPurchases(c echo.Context) error {
	buyerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Svc.BuyerPurchases(c.Request().Context(), buyerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": viewPurchases(items)})
}

// ListMyTickets handles GET /v1/my/tickets.  The response never
// includes secrets; the holder fetches those one at a time from the
// secret endpoint.
func (h *BuyerHandler) ListMyTickets(c echo.Context) error {
	holderID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Svc.HolderTickets(c.Request().Context(), holderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": viewTickets(items, time.Now().UTC())})
}

// GetTicketSecret handles GET /v1/my/tickets/:id/secret and returns
// the redemption key of one of the caller's own tickets, typically to
// render it as a QR code.
func (h *BuyerHandler) GetTicketSecret(c echo.Context) error {
	holderID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	secret, err := h.Svc.TicketSecret(c.Request().Context(), holderID, id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"secret": secret})
	case errors.Is(err, service.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
}
