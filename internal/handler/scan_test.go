package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelinec/ticket-office/internal/model"
	"github.com/avelinec/ticket-office/internal/payment"
	"github.com/avelinec/ticket-office/internal/repository"
	"github.com/avelinec/ticket-office/internal/service"
)

// Stub stores: just enough state for the handler paths under test.
// The service's own tests cover the transactional behavior in depth.

type stubSessions struct{ byID map[uint64]*model.Session }

func (s *stubSessions) Create(ctx context.Context, sess *model.Session) error { return nil }
func (s *stubSessions) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	if sess, ok := s.byID[id]; ok {
		return sess, nil
	}
	return nil, repository.ErrSessionNotFound
}
func (s *stubSessions) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error) {
	return s.GetByID(ctx, id)
}
func (s *stubSessions) AddCapacityTx(ctx context.Context, tx *sql.Tx, id uint64, n int64) error {
	return nil
}
func (s *stubSessions) DecrementCapacityTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	return nil
}
func (s *stubSessions) ListByOrganizer(ctx context.Context, organizerID uint64) ([]model.Session, error) {
	return nil, nil
}
func (s *stubSessions) ListAll(ctx context.Context) ([]model.Session, error) { return nil, nil }
func (s *stubSessions) HasUsableTicketsTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) (bool, error) {
	return false, nil
}
func (s *stubSessions) DeleteCascadeTx(ctx context.Context, tx *sql.Tx, id uint64) error { return nil }

type stubPurchases struct{}

func (stubPurchases) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Purchase) error { return nil }
func (stubPurchases) GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Purchase, error) {
	return nil, sql.ErrNoRows
}
func (stubPurchases) DeleteExpiredUnpaidTx(ctx context.Context, tx *sql.Tx, sessionID uint64, now time.Time) (int64, error) {
	return 0, nil
}
func (stubPurchases) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64) error { return nil }
func (stubPurchases) ListPaidBySession(ctx context.Context, sessionID uint64) ([]model.Purchase, error) {
	return nil, nil
}
func (stubPurchases) ListPaidBySessionTx(ctx context.Context, tx *sql.Tx, sessionID uint64) ([]model.Purchase, error) {
	return nil, nil
}
func (stubPurchases) ListByBuyer(ctx context.Context, buyerID uint64) ([]model.Purchase, error) {
	return nil, nil
}

type stubGenerators struct{}

func (stubGenerators) CreateTx(ctx context.Context, tx *sql.Tx, g *model.TicketGenerator) error {
	return nil
}
func (stubGenerators) GetByID(ctx context.Context, id uint64) (*model.TicketGenerator, error) {
	return nil, repository.ErrGeneratorNotFound
}
func (stubGenerators) ListBySession(ctx context.Context, sessionID uint64) ([]model.TicketGenerator, error) {
	return nil, nil
}
func (stubGenerators) DeleteWithTicketsTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	return nil
}

type stubTickets struct{ bySecret map[string]*model.Ticket }

func (s *stubTickets) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error { return nil }
func (s *stubTickets) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	return nil, sql.ErrNoRows
}
func (s *stubTickets) GetBySecret(ctx context.Context, secret string) (*model.Ticket, error) {
	if t, ok := s.bySecret[secret]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}
func (s *stubTickets) ConsumeScan(ctx context.Context, ticketID uint64, tag string) (bool, error) {
	for _, t := range s.bySecret {
		if t.ID == ticketID && t.ScanLeft > 0 {
			t.ScanLeft--
			if t.Tags == "" {
				t.Tags = tag
			} else {
				t.Tags = t.Tags + "," + tag
			}
			return true, nil
		}
	}
	return false, nil
}
func (s *stubTickets) ListByHolder(ctx context.Context, holderID uint64) ([]model.Ticket, error) {
	return nil, nil
}
func (s *stubTickets) ListByGeneratorAndTag(ctx context.Context, generatorID uint64, tag string) ([]model.Ticket, error) {
	return nil, nil
}
func (s *stubTickets) ListByGenerator(ctx context.Context, generatorID uint64) ([]model.Ticket, error) {
	return nil, nil
}

type stubPayments struct{}

func (stubPayments) InitCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	return &payment.Checkout{ID: "co_1", URL: "https://pay.example/co_1"}, nil
}

func newTestService(t *testing.T, tickets *stubTickets) *service.Ticketing {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return service.NewTicketing(db, &stubSessions{byID: map[uint64]*model.Session{}},
		stubPurchases{}, stubGenerators{}, tickets, stubPayments{}, nil)
}

func scanRequest(method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req, httptest.NewRecorder()
}

func TestScanHandler_Scan(t *testing.T) {
	tickets := &stubTickets{bySecret: map[string]*model.Ticket{
		"s3cret": {ID: 7, Secret: "s3cret", ScanLeft: 2, Expiration: time.Now().UTC().Add(time.Hour)},
	}}
	h := NewScanHandler(newTestService(t, tickets))
	e := echo.New()

	req, rec := scanRequest(http.MethodPost, "/v1/scan/s3cret", `{"tag":"Gate"}`)
	c := e.NewContext(req, rec)
	c.SetPath("/v1/scan/:secret")
	c.SetParamNames("secret")
	c.SetParamValues("s3cret")

	require.NoError(t, h.Scan(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scan_left":1`)
	assert.Contains(t, rec.Body.String(), `"tags":"gate"`)
	assert.NotContains(t, rec.Body.String(), "s3cret", "responses must never echo the secret")
}

func TestScanHandler_ScanFailureCodes(t *testing.T) {
	now := time.Now().UTC()
	tickets := &stubTickets{bySecret: map[string]*model.Ticket{
		"spent":   {ID: 1, Secret: "spent", ScanLeft: 0, Expiration: now.Add(time.Hour)},
		"expired": {ID: 2, Secret: "expired", ScanLeft: 3, Expiration: now.Add(-time.Hour)},
	}}
	h := NewScanHandler(newTestService(t, tickets))
	e := echo.New()

	cases := []struct {
		secret string
		code   int
	}{
		{"unknown", http.StatusNotFound},
		{"expired", http.StatusGone},
		{"spent", http.StatusConflict},
	}
	for _, tc := range cases {
		req, rec := scanRequest(http.MethodPost, "/v1/scan/"+tc.secret, `{"tag":"gate"}`)
		c := e.NewContext(req, rec)
		c.SetPath("/v1/scan/:secret")
		c.SetParamNames("secret")
		c.SetParamValues(tc.secret)

		require.NoError(t, h.Scan(c))
		assert.Equal(t, tc.code, rec.Code, "secret %q", tc.secret)
	}
}

func TestScanHandler_ScanRequiresTag(t *testing.T) {
	h := NewScanHandler(newTestService(t, &stubTickets{bySecret: map[string]*model.Ticket{}}))
	e := echo.New()

	req, rec := scanRequest(http.MethodPost, "/v1/scan/x", `{}`)
	c := e.NewContext(req, rec)
	c.SetPath("/v1/scan/:secret")
	c.SetParamNames("secret")
	c.SetParamValues("x")

	require.NoError(t, h.Scan(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanHandler_PeekDoesNotConsume(t *testing.T) {
	tickets := &stubTickets{bySecret: map[string]*model.Ticket{
		"s3cret": {ID: 7, Secret: "s3cret", ScanLeft: 2, Expiration: time.Now().UTC().Add(time.Hour)},
	}}
	h := NewScanHandler(newTestService(t, tickets))
	e := echo.New()

	req, rec := scanRequest(http.MethodGet, "/v1/scan/s3cret", "")
	c := e.NewContext(req, rec)
	c.SetPath("/v1/scan/:secret")
	c.SetParamNames("secret")
	c.SetParamValues("s3cret")

	require.NoError(t, h.Peek(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), tickets.bySecret["s3cret"].ScanLeft)
}
