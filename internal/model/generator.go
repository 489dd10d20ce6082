package model

import "time"

// TicketGenerator is a template describing a class of redeemable
// tickets attached to a session (e.g. "entry", "welcome drink").  One
// ticket is minted per generator for every paid purchase of the
// session, regardless of whether the generator was created before or
// after the purchase.  It corresponds to a row in the
// `ticket_generators` table.
//
// Fields:
//  ID         – primary key identifier.
//  SessionID  – session this generator belongs to.
//  Name       – label copied onto minted tickets.
//  MaxUse     – scan budget given to each minted ticket.
//  Expiration – absolute time after which minted tickets are unscannable.
type TicketGenerator struct {
	ID         uint64    // ticket_generators.id
	SessionID  uint64    // ticket_generators.session_id
	Name       string    // ticket_generators.name
	MaxUse     int64     // ticket_generators.max_use
	Expiration time.Time // ticket_generators.expiration
}
