package model

import "time"

// HoldDuration is how long an unpaid purchase may occupy one unit of a
// session's capacity before it is reclaimed.  The payment provider's
// checkout links expire after 15 minutes, so an unpaid purchase is
// considered abandoned after 16 and deleted by the next reserve
// attempt on its session.
const HoldDuration = 16 * time.Minute

// Purchase is a reservation that holds exactly one place of a session's
// capacity, pending or confirmed payment.  It corresponds to a row in
// the `purchases` table.
//
// While Paid is false the purchase counts against the session's
// remaining capacity: one unit was decremented when the row was
// created and is returned exactly once, either by payment (the place
// stays consumed and tickets are minted) or by the reclaim sweep
// (the place is returned to the pool and the row deleted).
//
// Fields:
//  ID          – primary key identifier.
//  SessionID   – session whose capacity this purchase holds.
//  BuyerID     – user who initiated the purchase.
//  CheckoutID  – opaque reference to the payment-provider checkout.
//  PurchasedOn – when the reservation was created (UTC).
//  Paid        – whether payment has been confirmed.
type Purchase struct {
	ID          uint64    // purchases.id
	SessionID   uint64    // purchases.session_id
	BuyerID     uint64    // purchases.buyer_id
	CheckoutID  string    // purchases.checkout_id
	PurchasedOn time.Time // purchases.purchased_on
	Paid        bool      // purchases.paid
}
