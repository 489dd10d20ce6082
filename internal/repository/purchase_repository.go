package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/avelinec/ticket-office/internal/model"
)

// PurchaseRepo provides data access to the purchases table.  A
// purchase row is created atomically with a capacity decrement inside
// a reserve transaction, and deleted either by the reclaim sweep
// (unpaid past the hold duration) or by a session cascade.  Paid
// purchases are kept as the audit record of the sale.
type PurchaseRepo struct {
	db *sql.DB
}

// NewPurchaseRepo returns a new PurchaseRepo bound to the provided database.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

const purchaseColumns = `id, session_id, buyer_id, checkout_id, purchased_on, paid`

// CreateTx inserts a new unpaid purchase within the provided
// transaction and populates its generated ID.  The caller must have
// decremented the session's capacity in the same transaction, under
// the session row lock.
func (r *PurchaseRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Purchase) error {
	const q = `INSERT INTO purchases (session_id, buyer_id, checkout_id, purchased_on, paid)
	           VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, p.SessionID, p.BuyerID, p.CheckoutID, p.PurchasedOn.UTC(), p.Paid)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

func scanPurchase(row interface{ Scan(...interface{}) error }) (*model.Purchase, error) {
	var p model.Purchase
	if err := row.Scan(&p.ID, &p.SessionID, &p.BuyerID, &p.CheckoutID, &p.PurchasedOn, &p.Paid); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns a purchase by primary key.  sql.ErrNoRows is
// returned unchanged when no row matches.
func (r *PurchaseRepo) GetByID(ctx context.Context, id uint64) (*model.Purchase, error) {
	return scanPurchase(r.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id))
}

// GetByCheckoutID resolves a payment-provider checkout reference to
// its purchase.  sql.ErrNoRows means the purchase was never created or
// has already been reclaimed; the payment layer treats that as fatal.
func (r *PurchaseRepo) GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Purchase, error) {
	return scanPurchase(r.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE checkout_id = ?`, checkoutID))
}

// DeleteExpiredUnpaidTx is the reclaim sweep: it deletes every unpaid
// purchase of the session whose hold window has elapsed and returns
// how many rows were removed so the caller can return that many places
// to the session's pool in one batched update.  The caller must hold
// the session row lock in the same transaction.
func (r *PurchaseRepo) DeleteExpiredUnpaidTx(ctx context.Context, tx *sql.Tx, sessionID uint64, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-model.HoldDuration)
	res, err := tx.ExecContext(ctx,
		`DELETE FROM purchases WHERE session_id = ? AND paid = FALSE AND purchased_on <= ?`,
		sessionID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkPaidTx flips the paid flag within the provided transaction.  It
// returns sql.ErrNoRows when the purchase no longer exists (reclaimed
// between the provider's confirmation and this call).
func (r *PurchaseRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, `UPDATE purchases SET paid = TRUE WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListPaidBySession returns every paid purchase of a session.  Used by
// the retroactive mint step and by organizer reporting.
func (r *PurchaseRepo) ListPaidBySession(ctx context.Context, sessionID uint64) ([]model.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE session_id = ? AND paid = TRUE ORDER BY purchased_on`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPurchases(rows)
}

// ListPaidBySessionTx is ListPaidBySession inside an existing
// transaction, so the retroactive mint sees a snapshot consistent
// with the generator insert.
func (r *PurchaseRepo) ListPaidBySessionTx(ctx context.Context, tx *sql.Tx, sessionID uint64) ([]model.Purchase, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE session_id = ? AND paid = TRUE ORDER BY purchased_on`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPurchases(rows)
}

// ListByBuyer returns all purchases made by a user, newest first.
func (r *PurchaseRepo) ListByBuyer(ctx context.Context, buyerID uint64) ([]model.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE buyer_id = ? ORDER BY purchased_on DESC`,
		buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPurchases(rows)
}

func collectPurchases(rows *sql.Rows) ([]model.Purchase, error) {
	purchases := make([]model.Purchase, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}
