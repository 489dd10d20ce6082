package model

import "time"

// Session represents one unit of sellable, time-bounded inventory: an
// event occurrence with a fixed number of interchangeable places.  It
// corresponds to a row in the `sessions` table.
//
// RemainingCapacity is the number of places still available for sale.
// It never goes negative and is only ever mutated inside a database
// transaction that holds an exclusive row lock on this session (see
// repository.SessionRepo.GetForUpdateTx).  Each pending or paid
// purchase accounts for exactly one consumed place.
//
// Fields:
//  ID                – primary key identifier.
//  OrganizerID       – user ID of the organizer who owns the session.
//  Name              – display name of the session.
//  Description       – optional free-text description.
//  StartsAt          – when the session begins.
//  EndsAt            – when the session ends (nullable).
//  PriceCents        – price of one place in minor currency units.
//  RemainingCapacity – places still available; >= 0 at all times.
//  CreatedAt         – timestamp of creation.
//  UpdatedAt         – timestamp of last update.
type Session struct {
	ID                uint64     // sessions.id
	OrganizerID       uint64     // sessions.organizer_id
	Name              string     // sessions.name
	Description       *string    // sessions.description (nullable)
	StartsAt          time.Time  // sessions.starts_at
	EndsAt            *time.Time // sessions.ends_at (nullable)
	PriceCents        int64      // sessions.price_cents
	RemainingCapacity int64      // sessions.remaining_capacity
	CreatedAt         time.Time  // sessions.created_at
	UpdatedAt         time.Time  // sessions.updated_at
}
