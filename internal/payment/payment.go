// Package payment integrates the external payment provider.  The
// ticketing core only needs two things from it: creating a checkout
// link for a given amount before a reservation is stored, and the
// asynchronous payment confirmation that arrives later on the webhook
// route.  The provider call must never happen inside a capacity
// transaction; callers create the checkout first and only then open
// the locked reserve transaction.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Checkout is the provider's handle for one payment attempt.  ID is
// stored on the purchase so the confirmation callback can be resolved
// back to it; URL is where the buyer completes payment.  Provider
// links expire after 15 minutes.
type Checkout struct {
	ID  string `json:"id"`
	URL string `json:"redirect_url"`
}

// CheckoutRequest describes the payment to initiate.
type CheckoutRequest struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	PayerID     uint64 `json:"payer_id"`
}

// Tool creates checkout links.  The HTTP client below is the real
// implementation; tests substitute their own.
type Tool interface {
	InitCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
}

// Client talks to the provider's checkout-intent endpoint over HTTPS.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a provider client.  baseURL points at the
// provider's API root, apiKey authenticates this merchant account.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// InitCheckout registers a checkout intent with the provider and
// returns its id and payment URL.
func (c *Client) InitCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout-intents", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}
	var out Checkout
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("payment provider returned empty checkout id")
	}
	return &out, nil
}
