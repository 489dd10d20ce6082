package handler // handler package contains the payment-provider webhook

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/service"
)

// PaymentHandler receives asynchronous payment confirmations from the
// provider.  The route is authenticated by a shared secret header
// instead of a JWT: the caller is the provider's backend, not a user.
type PaymentHandler struct {
	Svc           *service.Ticketing
	WebhookSecret string
}

func NewPaymentHandler(svc *service.Ticketing, webhookSecret string) *PaymentHandler {
	if svc == nil {
		panic("nil service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Svc: svc, WebhookSecret: webhookSecret}
}

// Callback handles POST /v1/payment/callback.  A 2xx tells the
// provider the confirmation was applied; every non-2xx means the money
// could not be matched to live state and the provider will surface the
// failure for manual reconciliation.  Nothing here retries.
func (h *PaymentHandler) Callback(c echo.Context) error {
	got := c.Request().Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookSecret)) != 1 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var body struct {
		CheckoutID  string `json:"checkout_id"`
		AmountCents int64  `json:"amount_cents"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.CheckoutID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "checkout_id is required"})
	}

	minted, err := h.Svc.OnPaymentConfirmed(c.Request().Context(), body.CheckoutID, body.AmountCents)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"minted": viewTickets(minted, time.Now().UTC())})
	case errors.Is(err, service.ErrUnknownCheckout):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "checkout does not match any purchase"})
	case errors.Is(err, service.ErrAmountMismatch):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "paid amount does not match session price"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "confirmation failed"})
	}
}
