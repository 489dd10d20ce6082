package handler // handler defines http handlers

import (
	"errors"  // errors provides the sentinel used in getUserID
	"strconv" // strconv converts strings to numeric types
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/model"
)

// getUserID extracts the user_id from echo.Context and converts it to
// uint64.  The JWT middleware stores the raw claim value, whose Go
// type depends on how the token was decoded.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// ----- JSON views -----
// The model structs mirror table rows; the views below are what goes
// over the wire.  The ticket view deliberately has no secret field:
// the secret is only ever returned by the dedicated secret endpoint.

type sessionView struct {
	ID                uint64     `json:"id"`
	OrganizerID       uint64     `json:"organizer_id"`
	Name              string     `json:"name"`
	Description       *string    `json:"description,omitempty"`
	StartsAt          time.Time  `json:"starts_at"`
	EndsAt            *time.Time `json:"ends_at,omitempty"`
	PriceCents        int64      `json:"price_cents"`
	RemainingCapacity int64      `json:"remaining_capacity"`
}

type purchaseView struct {
	ID          uint64    `json:"id"`
	SessionID   uint64    `json:"session_id"`
	BuyerID     uint64    `json:"buyer_id"`
	PurchasedOn time.Time `json:"purchased_on"`
	Paid        bool      `json:"paid"`
}

type generatorView struct {
	ID         uint64    `json:"id"`
	SessionID  uint64    `json:"session_id"`
	Name       string    `json:"name"`
	MaxUse     int64     `json:"max_use"`
	Expiration time.Time `json:"expiration"`
}

type ticketView struct {
	ID          uint64    `json:"id"`
	GeneratorID uint64    `json:"generator_id"`
	SessionID   uint64    `json:"session_id"`
	HolderID    uint64    `json:"holder_id"`
	Name        string    `json:"name"`
	ScanLeft    int64     `json:"scan_left"`
	Tags        string    `json:"tags"`
	Expiration  time.Time `json:"expiration"`
	Usable      bool      `json:"usable"`
}

func viewSession(s *model.Session) sessionView {
	return sessionView{
		ID:                s.ID,
		OrganizerID:       s.OrganizerID,
		Name:              s.Name,
		Description:       s.Description,
		StartsAt:          s.StartsAt,
		EndsAt:            s.EndsAt,
		PriceCents:        s.PriceCents,
		RemainingCapacity: s.RemainingCapacity,
	}
}

func viewSessions(items []model.Session) []sessionView {
	out := make([]sessionView, 0, len(items))
	for i := range items {
		out = append(out, viewSession(&items[i]))
	}
	return out
}

func viewPurchase(p *model.Purchase) purchaseView {
	return purchaseView{
		ID:          p.ID,
		SessionID:   p.SessionID,
		BuyerID:     p.BuyerID,
		PurchasedOn: p.PurchasedOn,
		Paid:        p.Paid,
	}
}

func viewPurchases(items []model.Purchase) []purchaseView {
	out := make([]purchaseView, 0, len(items))
	for i := range items {
		out = append(out, viewPurchase(&items[i]))
	}
	return out
}

func viewGenerator(g *model.TicketGenerator) generatorView {
	return generatorView{
		ID:         g.ID,
		SessionID:  g.SessionID,
		Name:       g.Name,
		MaxUse:     g.MaxUse,
		Expiration: g.Expiration,
	}
}

func viewGenerators(items []model.TicketGenerator) []generatorView {
	out := make([]generatorView, 0, len(items))
	for i := range items {
		out = append(out, viewGenerator(&items[i]))
	}
	return out
}

func viewTicket(t *model.Ticket, now time.Time) ticketView {
	return ticketView{
		ID:          t.ID,
		GeneratorID: t.GeneratorID,
		SessionID:   t.SessionID,
		HolderID:    t.HolderID,
		Name:        t.Name,
		ScanLeft:    t.ScanLeft,
		Tags:        t.Tags,
		Expiration:  t.Expiration,
		Usable:      t.Usable(now),
	}
}

func viewTickets(items []model.Ticket, now time.Time) []ticketView {
	out := make([]ticketView, 0, len(items))
	for i := range items {
		out = append(out, viewTicket(&items[i], now))
	}
	return out
}
