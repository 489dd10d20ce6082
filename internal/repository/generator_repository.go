package repository

import (
	"context"
	"database/sql"

	"github.com/avelinec/ticket-office/internal/model"
)

// GeneratorRepo provides data access to the ticket_generators table.
// Generators are created by organizers and never updated; deleting one
// cascades to every ticket it minted.
type GeneratorRepo struct {
	db *sql.DB
}

// NewGeneratorRepo returns a new GeneratorRepo bound to the provided database.
func NewGeneratorRepo(db *sql.DB) *GeneratorRepo { return &GeneratorRepo{db: db} }

const generatorColumns = `id, session_id, name, max_use, expiration`

// CreateTx inserts a generator within the provided transaction and
// populates its generated ID.  Creation shares a transaction with the
// retroactive mint step so that either both are visible or neither.
func (r *GeneratorRepo) CreateTx(ctx context.Context, tx *sql.Tx, g *model.TicketGenerator) error {
	const q = `INSERT INTO ticket_generators (session_id, name, max_use, expiration)
	           VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, g.SessionID, g.Name, g.MaxUse, g.Expiration.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = uint64(id)
	return nil
}

func scanGenerator(row interface{ Scan(...interface{}) error }) (*model.TicketGenerator, error) {
	var g model.TicketGenerator
	if err := row.Scan(&g.ID, &g.SessionID, &g.Name, &g.MaxUse, &g.Expiration); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetByID returns a generator by primary key.  It returns
// ErrGeneratorNotFound when no row matches.
func (r *GeneratorRepo) GetByID(ctx context.Context, id uint64) (*model.TicketGenerator, error) {
	g, err := scanGenerator(r.db.QueryRowContext(ctx,
		`SELECT `+generatorColumns+` FROM ticket_generators WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrGeneratorNotFound
	}
	return g, err
}

// ListBySession returns every generator attached to a session.
func (r *GeneratorRepo) ListBySession(ctx context.Context, sessionID uint64) ([]model.TicketGenerator, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+generatorColumns+` FROM ticket_generators WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	generators := make([]model.TicketGenerator, 0)
	for rows.Next() {
		g, err := scanGenerator(rows)
		if err != nil {
			return nil, err
		}
		generators = append(generators, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return generators, nil
}

// DeleteWithTicketsTx hard-deletes a generator and every ticket minted
// from it.  Redemption capability for that class disappears
// immediately; this is only used for not-yet-public sessions or
// operator error correction.
func (r *GeneratorRepo) DeleteWithTicketsTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE generator_id = ?`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM ticket_generators WHERE id = ?`, id)
	return err
}
