package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusSucceeded PaymentStatus = "succeeded" // written by older gateway integrations; treated like paid
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Blocking reports whether a payment in this status counts as an active
// subscription payment for the one-active-purchase check.
func (s PaymentStatus) Blocking() bool {
	return s == PaymentStatusPaid || s == PaymentStatusSucceeded
}

const PurposePricingPlan = "pricing-plan"

// RefundInfo carries the refund metadata attached to a payment record
// once a cancellation has been processed.
type RefundInfo struct {
	Status      string
	Amount      int64
	Reason      string
	ProcessedAt *time.Time
}

// PaymentRecord is the ledger entry for an individual payment or refund
// outcome. Written exclusively by the reconciliation flow: the webhook
// confirmation inserts it, cancellation updates it or synthesizes a
// missing one.
type PaymentRecord struct {
	ID         string // UUID
	UserID     string
	Purpose    string // e.g. "pricing-plan"
	Amount     int64  // minor currency units
	Currency   string
	Status     PaymentStatus
	IntentRef  string  // gateway payment-intent id
	PurchaseID *string // optional link back to the PlanPurchase
	Refund     *RefundInfo
	Visible    bool // soft-hide flag for user-facing history
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
