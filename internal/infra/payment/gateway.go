package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"gym-subscription-platform/internal/domain/ports/adapter"
)

var _ adapter.CheckoutGateway = (*CheckoutGateway)(nil)

// CheckoutGateway implements the checkout port against the provider's REST
// API using direct HTTP calls (form-encoded requests, bearer auth).
type CheckoutGateway struct {
	secretKey  string
	baseURL    string
	successURL string
	cancelURL  string
	client     *http.Client
}

func NewCheckoutGateway(secretKey, successURL, cancelURL string) *CheckoutGateway {
	return &CheckoutGateway{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com/v1",
		successURL: successURL,
		cancelURL:  cancelURL,
		client:     &http.Client{},
	}
}

func (g *CheckoutGateway) Name() string { return "stripe" }

type customerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type customerListResponse struct {
	Data []customerResponse `json:"data"`
}

type checkoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// EnsureCustomer implements CheckoutGateway.EnsureCustomer: lookup by email
// first, create when absent.
func (g *CheckoutGateway) EnsureCustomer(ctx context.Context, email string) (adapter.Customer, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("limit", "1")

	var list customerListResponse
	if err := g.call(ctx, http.MethodGet, "/customers?"+q.Encode(), nil, &list); err != nil {
		return adapter.Customer{}, fmt.Errorf("customer lookup: %w", err)
	}
	if len(list.Data) > 0 {
		return adapter.Customer{ID: list.Data[0].ID, Email: list.Data[0].Email}, nil
	}

	form := url.Values{}
	form.Set("email", email)
	var created customerResponse
	if err := g.call(ctx, http.MethodPost, "/customers", form, &created); err != nil {
		return adapter.Customer{}, fmt.Errorf("customer create: %w", err)
	}
	return adapter.Customer{ID: created.ID, Email: created.Email}, nil
}

// CreateCheckoutSession implements CheckoutGateway.CreateCheckoutSession.
func (g *CheckoutGateway) CreateCheckoutSession(ctx context.Context, customerID, priceID string, meta map[string]string) (adapter.CheckoutSession, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", g.successURL)
	form.Set("cancel_url", g.cancelURL)
	for k, v := range meta {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
		// Propagate to the payment intent too, so succeeded events carry it.
		form.Set(fmt.Sprintf("subscription_data[metadata][%s]", k), v)
	}

	var sess checkoutSessionResponse
	if err := g.call(ctx, http.MethodPost, "/checkout/sessions", form, &sess); err != nil {
		return adapter.CheckoutSession{}, fmt.Errorf("checkout session: %w", err)
	}
	return adapter.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *CheckoutGateway) call(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var e errorResponse
		if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
			return fmt.Errorf("gateway error: %s (%s)", e.Error.Message, e.Error.Type)
		}
		return fmt.Errorf("gateway error: status %d, body: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
	}
	return nil
}
