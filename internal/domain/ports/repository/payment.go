package repository

import (
	"context"

	"gym-subscription-platform/internal/domain/model"
)

type PaymentRepository interface {
	// Save upserts by id.
	Save(ctx context.Context, tx Tx, p *model.PaymentRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentRecord, error)

	// FindByPurchaseID returns the payment record linked to a purchase,
	// or ErrNotFound.
	FindByPurchaseID(ctx context.Context, tx Tx, purchaseID string) (*model.PaymentRecord, error)

	// FindBlockingByUser returns any paid/succeeded pricing-plan payment for
	// the user, or ErrNotFound. Consulted alongside the purchase store so a
	// discrepancy between the two still blocks a new purchase.
	FindBlockingByUser(ctx context.Context, tx Tx, userID string) (*model.PaymentRecord, error)

	// MarkRefunded sets status=refunded and attaches refund metadata.
	MarkRefunded(ctx context.Context, tx Tx, id string, refund model.RefundInfo) error

	// VisibleIDs reports which of the given payment ids exist and are still
	// visible. Wallet reads use this to drop transactions whose payment was
	// deleted or hidden.
	VisibleIDs(ctx context.Context, tx Tx, ids []string) (map[string]bool, error)
}
