package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"

	"github.com/avelinec/ticket-office/internal/model"
)

// TicketRepo provides data access to the tickets table.  Tickets are
// minted inside payment-reconciliation or generator-creation
// transactions and are immutable apart from the scan protocol: a
// single guarded UPDATE that decrements scan_left and appends the scan
// tag in one statement, so two simultaneous scans can never both
// consume the last use.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// NewTicketSecret generates the random redemption key embedded in the
// holder's QR code.  32 bytes of crypto/rand, hex encoded.  The secret
// is the sole scanning credential and must never appear in logs.
func NewTicketSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

const ticketColumns = `id, secret, generator_id, session_id, holder_id, name, scan_left, tags, expiration`

// CreateTx inserts a minted ticket within the provided transaction and
// populates its generated ID.  Callers drive minting exclusively from
// payment reconciliation and the retroactive mint step, which is what
// keeps one ticket per (paid purchase, generator) pair.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	const q = `INSERT INTO tickets
	           (secret, generator_id, session_id, holder_id, name, scan_left, tags, expiration)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		t.Secret, t.GeneratorID, t.SessionID, t.HolderID, t.Name, t.ScanLeft, t.Tags, t.Expiration.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

func scanTicket(row interface{ Scan(...interface{}) error }) (*model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(&t.ID, &t.Secret, &t.GeneratorID, &t.SessionID, &t.HolderID,
		&t.Name, &t.ScanLeft, &t.Tags, &t.Expiration)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID returns a ticket by its internal handle.  The id is safe to
// expose to the holder; it carries no redemption capability.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
}

// GetBySecret looks a ticket up by its redemption key.  sql.ErrNoRows
// is returned unchanged when the secret matches nothing.
func (r *TicketRepo) GetBySecret(ctx context.Context, secret string) (*model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE secret = ?`, secret))
}

// ConsumeScan performs the redemption step: one UPDATE that decrements
// scan_left and appends the (already lower-cased) tag to the comma-
// joined tags log, guarded by scan_left > 0.  It reports whether the
// guard admitted the update.  When it returns false the ticket was
// exhausted, possibly by a concurrent scanner between the caller's
// read and this call.
func (r *TicketRepo) ConsumeScan(ctx context.Context, ticketID uint64, tag string) (bool, error) {
	const q = `UPDATE tickets
	           SET scan_left = scan_left - 1,
	               tags = IF(tags = '', ?, CONCAT(tags, ',', ?))
	           WHERE id = ? AND scan_left > 0`
	res, err := r.db.ExecContext(ctx, q, tag, tag, ticketID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListByHolder returns every ticket held by a user.
func (r *TicketRepo) ListByHolder(ctx context.Context, holderID uint64) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE holder_id = ? ORDER BY id`, holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

// ListByGeneratorAndTag returns the tickets of a generator whose tags
// log contains the given tag.  Matching is a substring match on the
// lower-cased log, mirroring how tags are written.
func (r *TicketRepo) ListByGeneratorAndTag(ctx context.Context, generatorID uint64, tag string) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE generator_id = ? AND tags LIKE CONCAT('%', ?, '%') ORDER BY id`,
		generatorID, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

// ListByGenerator returns every ticket minted from a generator.
func (r *TicketRepo) ListByGenerator(ctx context.Context, generatorID uint64) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE generator_id = ? ORDER BY id`, generatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func collectTickets(rows *sql.Rows) ([]model.Ticket, error) {
	tickets := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}
