// Package queue defines message payloads exchanged over the message broker.
package queue

// TicketMintedEvent is published once per ticket when payment
// reconciliation or a retroactive mint creates it.  It contains enough
// information for downstream consumers to log, notify, or trigger
// analytics without querying the primary database.  The ticket secret
// is deliberately absent: it must never leave the database except to
// its holder.
type TicketMintedEvent struct {
	TicketID    uint64 `json:"ticket_id"`
	GeneratorID uint64 `json:"generator_id"`
	SessionID   uint64 `json:"session_id"`
	SessionName string `json:"session_name"`
	HolderID    uint64 `json:"holder_id"`
	TicketName  string `json:"ticket_name"`
	ScanLeft    int64  `json:"scan_left"`
	Expiration  string `json:"expiration"`
	MintedAt    string `json:"minted_at"`
}
