package model

import "time"

// Roles recognised by the role middleware and stored in users.role.
// Organizers create sessions and generators, buyers reserve places,
// scanners redeem tickets at the door.
const (
	RoleOrganizer = "ORGANIZER"
	RoleBuyer     = "BUYER"
	RoleScanner   = "SCANNER"
)

// User represents an application user record as stored in the `users`
// table.  The identity layer is thin glue: the ticketing core only
// consumes pre-authenticated buyer, organizer and scanner IDs.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – one of RoleOrganizer, RoleBuyer, RoleScanner.
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	CreatedAt    time.Time // users.created_at
}
