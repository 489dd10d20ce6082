package service

import "errors"

// Sentinel errors returned by the Ticketing service.  Handlers map
// them onto HTTP status codes; the payment webhook additionally logs
// the fatal ones at error severity because they mean money arrived for
// state that no longer matches.

// ErrCapacityExhausted is returned by Reserve when no place is left
// after the reclaim sweep.  Expected and frequent under contention;
// the buyer must re-attempt, the system never retries on its own.
var ErrCapacityExhausted = errors.New("all places have been sold")

// ErrUnknownCheckout is returned by OnPaymentConfirmed when the
// confirmed checkout cannot be resolved to a live purchase, typically
// because the reclaim sweep deleted the hold before a slow provider
// confirmed.  Money was received for inventory that no longer exists:
// the error must surface for manual reconciliation, never be dropped.
var ErrUnknownCheckout = errors.New("checkout does not match any purchase")

// ErrAmountMismatch is returned by OnPaymentConfirmed when the paid
// amount differs from the session price.  The payment is not applied.
var ErrAmountMismatch = errors.New("paid amount does not match session price")

// ErrTicketNotFound is returned by Scan when the secret matches no ticket.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrTicketExpired is returned by Scan once the ticket's expiration
// has passed.
var ErrTicketExpired = errors.New("ticket has expired")

// ErrTicketExhausted is returned by Scan when the scan budget is spent,
// including the case where a concurrent scanner consumed the last use.
var ErrTicketExhausted = errors.New("ticket has no scans left")
