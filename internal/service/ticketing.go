// Package service implements the ticketing core: the reservation
// lifecycle, payment reconciliation, ticket minting and the scan
// protocol.  All capacity coordination happens through database
// transactions; the service keeps no in-process shared mutable state
// and can run in any number of processes at once.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avelinec/ticket-office/internal/model"
	"github.com/avelinec/ticket-office/internal/payment"
	"github.com/avelinec/ticket-office/internal/queue"
	"github.com/avelinec/ticket-office/internal/repository"
)

// SessionStore is the session persistence surface the service needs.
// Implemented by repository.SessionRepo; tests substitute fakes.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uint64) (*model.Session, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error)
	AddCapacityTx(ctx context.Context, tx *sql.Tx, id uint64, n int64) error
	DecrementCapacityTx(ctx context.Context, tx *sql.Tx, id uint64) error
	ListByOrganizer(ctx context.Context, organizerID uint64) ([]model.Session, error)
	ListAll(ctx context.Context) ([]model.Session, error)
	HasUsableTicketsTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) (bool, error)
	DeleteCascadeTx(ctx context.Context, tx *sql.Tx, id uint64) error
}

// PurchaseStore is the purchase persistence surface the service needs.
type PurchaseStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, p *model.Purchase) error
	GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Purchase, error)
	DeleteExpiredUnpaidTx(ctx context.Context, tx *sql.Tx, sessionID uint64, now time.Time) (int64, error)
	MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64) error
	ListPaidBySession(ctx context.Context, sessionID uint64) ([]model.Purchase, error)
	ListPaidBySessionTx(ctx context.Context, tx *sql.Tx, sessionID uint64) ([]model.Purchase, error)
	ListByBuyer(ctx context.Context, buyerID uint64) ([]model.Purchase, error)
}

// GeneratorStore is the generator persistence surface the service needs.
type GeneratorStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, g *model.TicketGenerator) error
	GetByID(ctx context.Context, id uint64) (*model.TicketGenerator, error)
	ListBySession(ctx context.Context, sessionID uint64) ([]model.TicketGenerator, error)
	DeleteWithTicketsTx(ctx context.Context, tx *sql.Tx, id uint64) error
}

// TicketStore is the ticket persistence surface the service needs.
type TicketStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error
	GetByID(ctx context.Context, id uint64) (*model.Ticket, error)
	GetBySecret(ctx context.Context, secret string) (*model.Ticket, error)
	ConsumeScan(ctx context.Context, ticketID uint64, tag string) (bool, error)
	ListByHolder(ctx context.Context, holderID uint64) ([]model.Ticket, error)
	ListByGeneratorAndTag(ctx context.Context, generatorID uint64, tag string) ([]model.Ticket, error)
	ListByGenerator(ctx context.Context, generatorID uint64) ([]model.Ticket, error)
}

// Ticketing bundles the stores, the payment tool and the event
// publisher into the operations the HTTP layer exposes.  Constructed
// once at process start and passed by reference to handlers; it holds
// no per-request state.
type Ticketing struct {
	db         *sql.DB
	sessions   SessionStore
	purchases  PurchaseStore
	generators GeneratorStore
	tickets    TicketStore
	payments   payment.Tool
	publish    func(ctx context.Context, ev queue.TicketMintedEvent) error
	now        func() time.Time
}

// NewTicketing constructs the service.  publish may be nil to skip
// broker publishing (tests, local development without RabbitMQ).
func NewTicketing(
	db *sql.DB,
	sessions SessionStore,
	purchases PurchaseStore,
	generators GeneratorStore,
	tickets TicketStore,
	payments payment.Tool,
	publish func(ctx context.Context, ev queue.TicketMintedEvent) error,
) *Ticketing {
	if db == nil || sessions == nil || purchases == nil || generators == nil || tickets == nil {
		panic("nil dependency passed to NewTicketing")
	}
	return &Ticketing{
		db:         db,
		sessions:   sessions,
		purchases:  purchases,
		generators: generators,
		tickets:    tickets,
		payments:   payments,
		publish:    publish,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reservation is what a buyer gets back from Reserve: the pending
// purchase and the provider URL where payment completes.
type Reservation struct {
	Purchase    *model.Purchase
	CheckoutURL string
}

// Reserve attempts to hold one place of the session for the buyer.
// The checkout link is created with the provider before the locked
// transaction opens, so no external I/O happens while the session row
// lock is held.  Inside the transaction the reclaim sweep first
// deletes every unpaid purchase older than the hold duration and
// returns their places in one batched update; only then is the
// remaining capacity judged.  Losing the capacity race fails fast with
// ErrCapacityExhausted and leaves no partial state; the orphaned
// checkout link expires on the provider's side.
func (s *Ticketing) Reserve(ctx context.Context, sessionID, buyerID uint64) (*Reservation, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	checkout, err := s.payments.InitCheckout(ctx, payment.CheckoutRequest{
		Name:        sess.Name,
		AmountCents: sess.PriceCents,
		PayerID:     buyerID,
	})
	if err != nil {
		return nil, fmt.Errorf("init checkout: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := s.now()
	locked, err := s.sessions.GetForUpdateTx(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	reclaimed, err := s.purchases.DeleteExpiredUnpaidTx(ctx, tx, sessionID, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.AddCapacityTx(ctx, tx, sessionID, reclaimed); err != nil {
		return nil, err
	}
	if locked.RemainingCapacity+reclaimed <= 0 {
		return nil, ErrCapacityExhausted
	}

	p := &model.Purchase{
		SessionID:   sessionID,
		BuyerID:     buyerID,
		CheckoutID:  checkout.ID,
		PurchasedOn: now,
		Paid:        false,
	}
	if err := s.purchases.CreateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := s.sessions.DecrementCapacityTx(ctx, tx, sessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &Reservation{Purchase: p, CheckoutURL: checkout.URL}, nil
}

// OnPaymentConfirmed is the single place where money becomes access.
// It resolves the provider's checkout reference, verifies the amount
// against the session price, marks the purchase paid and mints one
// ticket per generator currently attached to the session, all in one
// transaction.  Every failure branch here is operator-visible: it is
// logged at error severity and returned, because it means the
// provider confirmed money for state this system no longer agrees
// with.  Nothing is retried automatically.
func (s *Ticketing) OnPaymentConfirmed(ctx context.Context, checkoutID string, paidAmount int64) ([]model.Ticket, error) {
	p, err := s.purchases.GetByCheckoutID(ctx, checkoutID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("ERROR payment callback: checkout %s not found; purchase may have been reclaimed", checkoutID)
			return nil, ErrUnknownCheckout
		}
		return nil, err
	}
	sess, err := s.sessions.GetByID(ctx, p.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			log.Printf("ERROR payment callback: session %d for checkout %s not found", p.SessionID, checkoutID)
		}
		return nil, err
	}
	if paidAmount != sess.PriceCents {
		log.Printf("ERROR payment callback: wrong amount for checkout %s: paid %d, expected %d",
			checkoutID, paidAmount, sess.PriceCents)
		return nil, ErrAmountMismatch
	}

	generators, err := s.generators.ListBySession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.purchases.MarkPaidTx(ctx, tx, p.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("ERROR payment callback: purchase %d vanished before it could be marked paid", p.ID)
			return nil, ErrUnknownCheckout
		}
		return nil, err
	}
	minted := make([]model.Ticket, 0, len(generators))
	for i := range generators {
		t, err := s.mintTx(ctx, tx, &generators[i], p)
		if err != nil {
			return nil, err
		}
		minted = append(minted, *t)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	s.publishMinted(ctx, sess, minted)
	return minted, nil
}

// mintTx builds and stores one ticket for a (generator, purchase)
// pair: scan budget and expiration copied from the generator, empty
// tags log, fresh random secret.
func (s *Ticketing) mintTx(ctx context.Context, tx *sql.Tx, g *model.TicketGenerator, p *model.Purchase) (*model.Ticket, error) {
	secret, err := repository.NewTicketSecret()
	if err != nil {
		return nil, err
	}
	t := &model.Ticket{
		Secret:      secret,
		GeneratorID: g.ID,
		SessionID:   g.SessionID,
		HolderID:    p.BuyerID,
		Name:        g.Name,
		ScanLeft:    g.MaxUse,
		Tags:        "",
		Expiration:  g.Expiration,
	}
	if err := s.tickets.CreateTx(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// publishMinted emits one broker event per minted ticket.  Publishing
// is best-effort: the tickets are already committed and a broker
// outage must not fail the request.
func (s *Ticketing) publishMinted(ctx context.Context, sess *model.Session, minted []model.Ticket) {
	if s.publish == nil {
		return
	}
	mintedAt := s.now().Format(time.RFC3339)
	for i := range minted {
		t := &minted[i]
		_ = s.publish(ctx, queue.TicketMintedEvent{
			TicketID:    t.ID,
			GeneratorID: t.GeneratorID,
			SessionID:   t.SessionID,
			SessionName: sess.Name,
			HolderID:    t.HolderID,
			TicketName:  t.Name,
			ScanLeft:    t.ScanLeft,
			Expiration:  t.Expiration.UTC().Format(time.RFC3339),
			MintedAt:    mintedAt,
		})
	}
}

// CreateSession stores a new session for the organizer.
func (s *Ticketing) CreateSession(ctx context.Context, sess *model.Session) error {
	return s.sessions.Create(ctx, sess)
}

// CreateGenerator attaches a new ticket class to the organizer's
// session and, in the same transaction, retroactively mints one ticket
// per already-paid purchase.  Generators may legitimately appear after
// sales started; this step keeps the invariant that every paid buyer
// holds one ticket per generator on their session regardless of
// creation order.
func (s *Ticketing) CreateGenerator(ctx context.Context, organizerID uint64, g *model.TicketGenerator) ([]model.Ticket, error) {
	sess, err := s.sessionOwnedBy(ctx, g.SessionID, organizerID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.generators.CreateTx(ctx, tx, g); err != nil {
		return nil, err
	}
	paid, err := s.purchases.ListPaidBySessionTx(ctx, tx, g.SessionID)
	if err != nil {
		return nil, err
	}
	minted := make([]model.Ticket, 0, len(paid))
	for i := range paid {
		t, err := s.mintTx(ctx, tx, g, &paid[i])
		if err != nil {
			return nil, err
		}
		minted = append(minted, *t)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	s.publishMinted(ctx, sess, minted)
	return minted, nil
}

// DeleteGenerator removes a generator and every ticket minted from it.
func (s *Ticketing) DeleteGenerator(ctx context.Context, organizerID, generatorID uint64) error {
	g, err := s.generators.GetByID(ctx, generatorID)
	if err != nil {
		return err
	}
	if _, err := s.sessionOwnedBy(ctx, g.SessionID, organizerID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.generators.DeleteWithTicketsTx(ctx, tx, generatorID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// DeleteSession removes the session with all its generators, tickets
// and purchases in one transaction.  Deletion is refused with
// repository.ErrConflict while any minted ticket is still usable
// (scan budget left and unexpired): a live ticket is an outstanding
// promise to a paying buyer and must not be silently invalidated.
func (s *Ticketing) DeleteSession(ctx context.Context, organizerID, sessionID uint64) error {
	if _, err := s.sessionOwnedBy(ctx, sessionID, organizerID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	// Lock the row so a concurrent payment cannot mint new tickets
	// between the usability check and the cascade.
	if _, err := s.sessions.GetForUpdateTx(ctx, tx, sessionID); err != nil {
		return err
	}
	usable, err := s.sessions.HasUsableTicketsTx(ctx, tx, sessionID, s.now())
	if err != nil {
		return err
	}
	if usable {
		return repository.ErrConflict
	}
	if err := s.sessions.DeleteCascadeTx(ctx, tx, sessionID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Scan redeems one use of the ticket identified by secret.  The tag is
// trimmed and lower-cased, then appended to the ticket's tags log in
// the same guarded UPDATE that decrements scan_left, so a ticket with
// one use left admits exactly one of any number of racing scanners.
// The same tag scanned twice appears twice: the log is an audit trail
// of scan events, not a set.  The returned ticket reflects the state
// after the scan.
func (s *Ticketing) Scan(ctx context.Context, secret, tag string) (*model.Ticket, error) {
	t, err := s.tickets.GetBySecret(ctx, secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	if t.ScanLeft <= 0 {
		return nil, ErrTicketExhausted
	}
	if s.now().After(t.Expiration) {
		return nil, ErrTicketExpired
	}
	tag = strings.ToLower(strings.TrimSpace(tag))
	ok, err := s.tickets.ConsumeScan(ctx, t.ID, tag)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent scanner spent the last use between our read
		// and the guarded update.
		return nil, ErrTicketExhausted
	}
	t.ScanLeft--
	if t.Tags == "" {
		t.Tags = tag
	} else {
		t.Tags = t.Tags + "," + tag
	}
	return t, nil
}

// TicketBySecret returns ticket metadata for the scanner's pre-scan
// screen without consuming a use.
func (s *Ticketing) TicketBySecret(ctx context.Context, secret string) (*model.Ticket, error) {
	t, err := s.tickets.GetBySecret(ctx, secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

// TicketSecret returns the redemption key of one of the holder's own
// tickets.  Requests for another user's ticket fail with
// repository.ErrForbidden: the id is an internal handle, the secret is
// the capability.
func (s *Ticketing) TicketSecret(ctx context.Context, holderID, ticketID uint64) (string, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTicketNotFound
		}
		return "", err
	}
	if t.HolderID != holderID {
		return "", repository.ErrForbidden
	}
	return t.Secret, nil
}

// GeneratorTags returns the distinct set of tags recorded across a
// generator's tickets.
func (s *Ticketing) GeneratorTags(ctx context.Context, generatorID uint64) ([]string, error) {
	tickets, err := s.tickets.ListByGenerator(ctx, generatorID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	tags := make([]string, 0)
	for i := range tickets {
		if tickets[i].Tags == "" {
			continue
		}
		for _, tag := range strings.Split(tickets[i].Tags, ",") {
			if _, ok := seen[tag]; !ok {
				seen[tag] = struct{}{}
				tags = append(tags, tag)
			}
		}
	}
	return tags, nil
}

// TicketsByTag returns the tickets of a generator that have recorded
// the given tag, for organizer reporting ("who already used this
// perk").
func (s *Ticketing) TicketsByTag(ctx context.Context, generatorID uint64, tag string) ([]model.Ticket, error) {
	return s.tickets.ListByGeneratorAndTag(ctx, generatorID, strings.ToLower(strings.TrimSpace(tag)))
}

// SessionGenerators lists a session's generators after checking the
// caller owns the session.
func (s *Ticketing) SessionGenerators(ctx context.Context, organizerID, sessionID uint64) ([]model.TicketGenerator, error) {
	if _, err := s.sessionOwnedBy(ctx, sessionID, organizerID); err != nil {
		return nil, err
	}
	return s.generators.ListBySession(ctx, sessionID)
}

// SessionPaidPurchases lists a session's paid purchases after checking
// the caller owns the session.
func (s *Ticketing) SessionPaidPurchases(ctx context.Context, organizerID, sessionID uint64) ([]model.Purchase, error) {
	if _, err := s.sessionOwnedBy(ctx, sessionID, organizerID); err != nil {
		return nil, err
	}
	return s.purchases.ListPaidBySession(ctx, sessionID)
}

// Sessions returns every session for public browsing.
func (s *Ticketing) Sessions(ctx context.Context) ([]model.Session, error) {
	return s.sessions.ListAll(ctx)
}

// SessionByID returns one session.
func (s *Ticketing) SessionByID(ctx context.Context, id uint64) (*model.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

// GeneratorByID returns one generator.
func (s *Ticketing) GeneratorByID(ctx context.Context, id uint64) (*model.TicketGenerator, error) {
	return s.generators.GetByID(ctx, id)
}

// OrganizerSessions returns the sessions owned by the organizer.
func (s *Ticketing) OrganizerSessions(ctx context.Context, organizerID uint64) ([]model.Session, error) {
	return s.sessions.ListByOrganizer(ctx, organizerID)
}

// BuyerPurchases returns the purchases made by a buyer.
func (s *Ticketing) BuyerPurchases(ctx context.Context, buyerID uint64) ([]model.Purchase, error) {
	return s.purchases.ListByBuyer(ctx, buyerID)
}

// HolderTickets returns the tickets held by a user.
func (s *Ticketing) HolderTickets(ctx context.Context, holderID uint64) ([]model.Ticket, error) {
	return s.tickets.ListByHolder(ctx, holderID)
}

// sessionOwnedBy loads a session and verifies ownership, returning
// repository.ErrForbidden on mismatch.
func (s *Ticketing) sessionOwnedBy(ctx context.Context, sessionID, organizerID uint64) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OrganizerID != organizerID {
		return nil, repository.ErrForbidden
	}
	return sess, nil
}
