package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelinec/ticket-office/internal/model"
)

// These tests need a real MySQL because they exercise row locks and
// guarded UPDATEs under actual concurrency.  Point TEST_DATABASE_DSN
// at a scratch database with db/schema.sql applied, e.g.
//
//	TEST_DATABASE_DSN='root@tcp(localhost:3306)/ticket_office_test?parseTime=true&loc=UTC'
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	t.Cleanup(func() {
		for _, table := range []string{"tickets", "ticket_generators", "purchases", "sessions", "users"} {
			_, _ = db.Exec("DELETE FROM " + table)
		}
		_ = db.Close()
	})
	return db
}

func seedUser(t *testing.T, db *sql.DB, email, role string) uint64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO users (email, password_hash, role) VALUES (?, 'x', ?)", email, role)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

func seedSession(t *testing.T, db *sql.DB, organizerID uint64, capacity int64) *model.Session {
	t.Helper()
	s := &model.Session{
		OrganizerID:       organizerID,
		Name:              "load test",
		StartsAt:          time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		PriceCents:        1000,
		RemainingCapacity: capacity,
	}
	require.NoError(t, NewSessionRepo(db).Create(context.Background(), s))
	return s
}

// reserveOnce replays the service's reserve transaction shape: lock
// the row, sweep expired holds, judge capacity, insert, decrement.
func reserveOnce(db *sql.DB, sessionID, buyerID uint64, checkoutID string) error {
	ctx := context.Background()
	sessions := NewSessionRepo(db)
	purchases := NewPurchaseRepo(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	locked, err := sessions.GetForUpdateTx(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	reclaimed, err := purchases.DeleteExpiredUnpaidTx(ctx, tx, sessionID, now)
	if err != nil {
		return err
	}
	if err := sessions.AddCapacityTx(ctx, tx, sessionID, reclaimed); err != nil {
		return err
	}
	if locked.RemainingCapacity+reclaimed <= 0 {
		return ErrConflict
	}
	if err := purchases.CreateTx(ctx, tx, &model.Purchase{
		SessionID: sessionID, BuyerID: buyerID, CheckoutID: checkoutID, PurchasedOn: now,
	}); err != nil {
		return err
	}
	if err := sessions.DecrementCapacityTx(ctx, tx, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func TestConcurrentReserves_NeverOversell(t *testing.T) {
	db := openTestDB(t)
	organizer := seedUser(t, db, "org@example.com", model.RoleOrganizer)
	sess := seedSession(t, db, organizer, 5)

	const attempts = 25
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reserveOnce(db, sess.ID, organizer, fmt.Sprintf("co_%d", i))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 5, won, "exactly capacity reservations may succeed")

	var remaining int64
	require.NoError(t, db.QueryRow(
		"SELECT remaining_capacity FROM sessions WHERE id = ?", sess.ID).Scan(&remaining))
	assert.Equal(t, int64(0), remaining)

	var count int64
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM purchases WHERE session_id = ?", sess.ID).Scan(&count))
	assert.Equal(t, int64(5), count)
}

func TestDeleteExpiredUnpaid_Boundary(t *testing.T) {
	db := openTestDB(t)
	organizer := seedUser(t, db, "org@example.com", model.RoleOrganizer)
	sess := seedSession(t, db, organizer, 10)
	purchases := NewPurchaseRepo(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insert := func(checkoutID string, age time.Duration, paid bool) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, purchases.CreateTx(ctx, tx, &model.Purchase{
			SessionID: sess.ID, BuyerID: organizer, CheckoutID: checkoutID,
			PurchasedOn: now.Add(-age), Paid: paid,
		}))
		require.NoError(t, tx.Commit())
	}
	insert("co_fresh", time.Minute, false)
	insert("co_boundary", model.HoldDuration, false)
	insert("co_stale", model.HoldDuration+time.Hour, false)
	insert("co_paid_old", model.HoldDuration+time.Hour, true)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	n, err := purchases.DeleteExpiredUnpaidTx(ctx, tx, sess.ID, now)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(2), n, "the boundary hold and the stale hold are reclaimed")

	_, err = purchases.GetByCheckoutID(ctx, "co_fresh")
	assert.NoError(t, err, "a hold inside the window survives")
	_, err = purchases.GetByCheckoutID(ctx, "co_paid_old")
	assert.NoError(t, err, "paid purchases are never reclaimed")
	_, err = purchases.GetByCheckoutID(ctx, "co_stale")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func seedTicket(t *testing.T, db *sql.DB, sessionID, holderID uint64, scanLeft int64, exp time.Time) *model.Ticket {
	t.Helper()
	ctx := context.Background()
	generators := NewGeneratorRepo(db)
	tickets := NewTicketRepo(db)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	g := &model.TicketGenerator{SessionID: sessionID, Name: "entry", MaxUse: scanLeft, Expiration: exp}
	require.NoError(t, generators.CreateTx(ctx, tx, g))
	secret, err := NewTicketSecret()
	require.NoError(t, err)
	tk := &model.Ticket{
		Secret: secret, GeneratorID: g.ID, SessionID: sessionID, HolderID: holderID,
		Name: g.Name, ScanLeft: scanLeft, Expiration: exp,
	}
	require.NoError(t, tickets.CreateTx(ctx, tx, tk))
	require.NoError(t, tx.Commit())
	return tk
}

func TestConcurrentScans_LastUseConsumedOnce(t *testing.T) {
	db := openTestDB(t)
	organizer := seedUser(t, db, "org@example.com", model.RoleOrganizer)
	sess := seedSession(t, db, organizer, 10)
	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	tk := seedTicket(t, db, sess.ID, organizer, 1, exp)
	tickets := NewTicketRepo(db)

	const scanners = 10
	var wg sync.WaitGroup
	results := make([]bool, scanners)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := tickets.ConsumeScan(context.Background(), tk.ID, fmt.Sprintf("gate%d", i))
			require.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, ok := range results {
		if ok {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted, "one use admits exactly one of the racing scanners")

	got, err := tickets.GetByID(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.ScanLeft)
	assert.NotEmpty(t, got.Tags)
	assert.NotContains(t, got.Tags, ",", "only the winning scan reaches the tag log")
}

func TestConsumeScan_AppendsTagsInOrder(t *testing.T) {
	db := openTestDB(t)
	organizer := seedUser(t, db, "org@example.com", model.RoleOrganizer)
	sess := seedSession(t, db, organizer, 10)
	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	tk := seedTicket(t, db, sess.ID, organizer, 3, exp)
	tickets := NewTicketRepo(db)
	ctx := context.Background()

	for _, tag := range []string{"gate", "bar", "gate"} {
		ok, err := tickets.ConsumeScan(ctx, tk.ID, tag)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := tickets.ConsumeScan(ctx, tk.ID, "late")
	require.NoError(t, err)
	assert.False(t, ok, "a spent ticket refuses further scans")

	got, err := tickets.GetByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "gate,bar,gate", got.Tags)
	assert.Equal(t, int64(0), got.ScanLeft)
}

func TestHasUsableTickets_AndCascadeDelete(t *testing.T) {
	db := openTestDB(t)
	organizer := seedUser(t, db, "org@example.com", model.RoleOrganizer)
	sess := seedSession(t, db, organizer, 10)
	sessions := NewSessionRepo(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	live := seedTicket(t, db, sess.ID, organizer, 1, now.Add(time.Hour))
	seedTicket(t, db, sess.ID, organizer, 0, now.Add(time.Hour)) // exhausted
	seedTicket(t, db, sess.ID, organizer, 2, now.Add(-time.Hour)) // expired

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	usable, err := sessions.HasUsableTicketsTx(ctx, tx, sess.ID, now)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.True(t, usable)

	// Spend the live ticket; only expired and exhausted tickets remain.
	ok, err := NewTicketRepo(db).ConsumeScan(ctx, live.ID, "gate")
	require.NoError(t, err)
	require.True(t, ok)

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	usable, err = sessions.HasUsableTicketsTx(ctx, tx, sess.ID, now)
	require.NoError(t, err)
	assert.False(t, usable)
	require.NoError(t, sessions.DeleteCascadeTx(ctx, tx, sess.ID))
	require.NoError(t, tx.Commit())

	_, err = sessions.GetByID(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	var tickets int64
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tickets").Scan(&tickets))
	assert.Equal(t, int64(0), tickets)
}
