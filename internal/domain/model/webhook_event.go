package model

import "time"

// Gateway event types that confirm a successful charge.
const (
	EventTypeCheckoutCompleted = "checkout.session.completed"
	EventTypeIntentSucceeded   = "payment_intent.succeeded"
)

// GatewayEvent is the parsed, provider-agnostic view of a webhook payload.
type GatewayEvent struct {
	ID        string // gateway event id, used for deduplication
	Type      string
	IntentRef string // gateway payment-intent id
	Amount    int64
	Currency  string
	UserID    string // from event metadata; may be empty
	PlanName  string // from event metadata; may be empty
}

// WebhookEvent is the persisted dedup marker for a processed gateway event.
type WebhookEvent struct {
	ID         string
	Type       string
	ReceivedAt time.Time
}
