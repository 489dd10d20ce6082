package model

import "time"

// Ticket is an individually redeemable capability minted for exactly
// one (paid purchase, generator) pair.  It corresponds to a row in the
// `tickets` table.
//
// The secret, not the id, is the scanning credential.  The id may
// appear in URLs the holder uses to query their own ticket, while the
// secret is only ever transmitted once (embedded in a QR code) and is
// required to perform a scan.  Leaking an id must not allow forging a
// scan.
//
// ScanLeft only decreases and never drops below zero; the decrement is
// a single guarded UPDATE so concurrent scans cannot both consume the
// last use.  Tags is a comma-joined, lower-cased log of every scan's
// tag in scan order; the same tag scanned twice appears twice.
//
// Fields:
//  ID          – primary key identifier (safe to expose).
//  Secret      – unguessable redemption key (unique, never logged).
//  GeneratorID – generator this ticket was minted from.
//  SessionID   – session the generator belongs to.
//  HolderID    – user holding the ticket.
//  Name        – label copied from the generator at mint time.
//  ScanLeft    – remaining scan budget; >= 0 at all times.
//  Tags        – comma-joined audit log of scan tags.
//  Expiration  – copied from the generator at mint time.
type Ticket struct {
	ID          uint64    // tickets.id
	Secret      string    // tickets.secret
	GeneratorID uint64    // tickets.generator_id
	SessionID   uint64    // tickets.session_id
	HolderID    uint64    // tickets.holder_id
	Name        string    // tickets.name
	ScanLeft    int64     // tickets.scan_left
	Tags        string    // tickets.tags
	Expiration  time.Time // tickets.expiration
}

// Usable reports whether the ticket can still be scanned at the given
// instant: it has scan budget left and has not expired.
func (t *Ticket) Usable(now time.Time) bool {
	return t.ScanLeft > 0 && now.Before(t.Expiration)
}
