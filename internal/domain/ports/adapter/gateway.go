package adapter

import "context"

type Customer struct {
	ID    string
	Email string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutGateway is the hex port for the external payment provider.
type CheckoutGateway interface {
	Name() string

	// EnsureCustomer looks up a customer by email and creates one if absent.
	EnsureCustomer(ctx context.Context, email string) (Customer, error)

	// CreateCheckoutSession opens a hosted checkout for the given price.
	// meta is attached to the session and echoed back in webhook events.
	CreateCheckoutSession(ctx context.Context, customerID, priceID string, meta map[string]string) (CheckoutSession, error)
}
