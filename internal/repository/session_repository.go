package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/avelinec/ticket-office/internal/model"
)

// SessionRepo provides data access to the sessions table.  Sessions
// carry the remaining_capacity counter, the only shared mutable state
// in the system.  The counter is never read-then-written outside a
// transaction holding the session's row lock; callers obtain the lock
// with GetForUpdateTx and mutate the counter with AddCapacityTx and
// DecrementCapacityTx inside the same transaction.  All timestamp
// fields are stored and compared in UTC.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a new SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a new session and populates the generated ID and
// timestamps on the provided model.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `INSERT INTO sessions
	           (organizer_id, name, description, starts_at, ends_at, price_cents, remaining_capacity)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	var ends interface{}
	if s.EndsAt != nil {
		ends = s.EndsAt.UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		s.OrganizerID, s.Name, s.Description, s.StartsAt.UTC(), ends, s.PriceCents, s.RemainingCapacity)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM sessions WHERE id = ?`, s.ID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// scanSession reads one sessions row from a row scanner.
func scanSession(row interface{ Scan(...interface{}) error }) (*model.Session, error) {
	var s model.Session
	var desc sql.NullString
	var ends sql.NullTime
	err := row.Scan(&s.ID, &s.OrganizerID, &s.Name, &desc, &s.StartsAt, &ends,
		&s.PriceCents, &s.RemainingCapacity, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		d := desc.String
		s.Description = &d
	}
	if ends.Valid {
		e := ends.Time.UTC()
		s.EndsAt = &e
	}
	return &s, nil
}

const sessionColumns = `id, organizer_id, name, description, starts_at, ends_at,
	price_cents, remaining_capacity, created_at, updated_at`

// GetByID returns a session by primary key.  It returns
// ErrSessionNotFound when no row matches.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// GetForUpdateTx loads a session inside the provided transaction while
// acquiring an exclusive row lock (SELECT ... FOR UPDATE).  Two
// concurrent reserve attempts on the same session are strictly
// serialized by this lock.  The window between this call and the
// transaction commit must stay short: no external I/O may happen while
// the lock is held.  Returns ErrSessionNotFound when no row matches.
func (r *SessionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error) {
	s, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// AddCapacityTx returns n reclaimed places to the session's pool as a
// single batched update.  The caller must hold the session row lock in
// the same transaction.  Passing n <= 0 has no effect.
func (r *SessionRepo) AddCapacityTx(ctx context.Context, tx *sql.Tx, id uint64, n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE sessions SET remaining_capacity = remaining_capacity + ? WHERE id = ?`, n, id)
	return err
}

// DecrementCapacityTx consumes exactly one place.  The guard on
// remaining_capacity makes a negative counter impossible by
// construction even if a caller skipped the capacity check; when the
// guard rejects the update, ErrConflict is returned.
func (r *SessionRepo) DecrementCapacityTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET remaining_capacity = remaining_capacity - 1
		 WHERE id = ? AND remaining_capacity > 0`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ListByOrganizer returns all sessions owned by the given organizer,
// newest first.
func (r *SessionRepo) ListByOrganizer(ctx context.Context, organizerID uint64) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE organizer_id = ? ORDER BY created_at DESC`,
		organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListAll returns every session, soonest start first.  Used by the
// public browse endpoint.
func (r *SessionRepo) ListAll(ctx context.Context) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY starts_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]model.Session, error) {
	sessions := make([]model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// HasUsableTicketsTx reports whether any ticket minted for the session
// still has scan budget left and has not expired.  A usable ticket is
// an outstanding promise to a paying buyer and blocks session
// deletion.
func (r *SessionRepo) HasUsableTicketsTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) (bool, error) {
	var n int64
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE session_id = ? AND scan_left > 0 AND expiration > ?`,
		id, now.UTC()).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteCascadeTx removes the session together with all its purchases,
// generators and tickets.  The caller decides beforehand (via
// HasUsableTicketsTx, in the same transaction) whether deletion is
// allowed; this method performs no guard of its own.
func (r *SessionRepo) DeleteCascadeTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	for _, q := range []string{
		`DELETE FROM tickets WHERE session_id = ?`,
		`DELETE FROM ticket_generators WHERE session_id = ?`,
		`DELETE FROM purchases WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}
