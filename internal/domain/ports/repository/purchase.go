package repository

import (
	"context"
	"time"

	"gym-subscription-platform/internal/domain/model"
)

type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PlanPurchase) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PlanPurchase, error)

	// FindBlockingByUser returns any purchase in a paid/active status for the
	// user, or ErrNotFound.
	FindBlockingByUser(ctx context.Context, tx Tx, userID string) (*model.PlanPurchase, error)

	// FindLatestByUserAndPlan returns the most recent purchase for (user, plan)
	// regardless of status, or ErrNotFound.
	FindLatestByUserAndPlan(ctx context.Context, tx Tx, userID, planName string) (*model.PlanPurchase, error)

	// MarkPaidIfPending atomically transitions pending -> paid; returns false
	// when the purchase was not pending (already confirmed, or refunded).
	MarkPaidIfPending(ctx context.Context, tx Tx, id string, paidAt time.Time) (bool, error)

	// MarkRefundedByUserAndPlan moves every paid/active purchase for
	// (user, plan) to refunded. Plural on purpose: duplicate purchases can
	// exist when the single-active invariant was violated by a race.
	// Returns the number of rows updated.
	MarkRefundedByUserAndPlan(ctx context.Context, tx Tx, userID, planName string, refundedAt time.Time) (int64, error)

	// ListRefundedWithoutPayment returns refunded purchases that have no
	// refunded payment record linked to them, oldest first. Used by the
	// repair worker.
	ListRefundedWithoutPayment(ctx context.Context, tx Tx, limit int) ([]*model.PlanPurchase, error)

	// LockUser takes the per-user advisory lock for the duration of the
	// surrounding transaction. Must be called with a non-nil tx.
	LockUser(ctx context.Context, tx Tx, userID string) error
}
