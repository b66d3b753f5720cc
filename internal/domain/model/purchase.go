package model

import "time"

type PurchaseStatus string

const (
	PurchaseStatusPending  PurchaseStatus = "pending"  // checkout session created; awaiting gateway confirmation
	PurchaseStatusPaid     PurchaseStatus = "paid"     // webhook confirmed the charge
	PurchaseStatusActive   PurchaseStatus = "active"   // legacy alias of paid found in older rows
	PurchaseStatusRefunded PurchaseStatus = "refunded" // cancelled; partial refund credited to wallet
)

// Blocking reports whether a purchase in this status prevents the user
// from initiating another one.
func (s PurchaseStatus) Blocking() bool {
	return s == PurchaseStatusPaid || s == PurchaseStatusActive
}

// PlanPurchase records a user's membership-plan purchase and its lifecycle.
// Rows are never deleted; cancellation moves them to refunded.
type PlanPurchase struct {
	ID          string // UUID
	UserID      string
	PlanName    string
	Amount      int64 // minor currency units, to avoid float errors
	Currency    string
	Status      PurchaseStatus
	CustomerRef string // gateway customer id
	CheckoutRef string // gateway checkout session id
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	RefundedAt  *time.Time
}
