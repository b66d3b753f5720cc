package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentCols = `id, user_id, purpose, amount, currency, status, intent_ref, purchase_id, refund_status, refund_amount, refund_reason, refund_processed_at, visible, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.PaymentRecord, error) {
	p := &model.PaymentRecord{}
	var refundStatus, refundReason *string
	var refundAmount *int64
	var refundProcessedAt *time.Time
	if err := row.Scan(&p.ID, &p.UserID, &p.Purpose, &p.Amount, &p.Currency, &p.Status, &p.IntentRef, &p.PurchaseID,
		&refundStatus, &refundAmount, &refundReason, &refundProcessedAt, &p.Visible, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if refundStatus != nil {
		p.Refund = &model.RefundInfo{Status: *refundStatus, ProcessedAt: refundProcessedAt}
		if refundAmount != nil {
			p.Refund.Amount = *refundAmount
		}
		if refundReason != nil {
			p.Refund.Reason = *refundReason
		}
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	var refundStatus, refundReason *string
	var refundAmount *int64
	var refundProcessedAt *time.Time
	if p.Refund != nil {
		refundStatus = &p.Refund.Status
		refundAmount = &p.Refund.Amount
		refundReason = &p.Refund.Reason
		refundProcessedAt = p.Refund.ProcessedAt
	}

	const q = `
INSERT INTO payments (
  id, user_id, purpose, amount, currency, status, intent_ref, purchase_id, refund_status, refund_amount, refund_reason, refund_processed_at, visible, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (id) DO UPDATE SET
  status=$6, intent_ref=$7, purchase_id=$8, refund_status=$9, refund_amount=$10, refund_reason=$11, refund_processed_at=$12, visible=$13, updated_at=$15;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.Purpose, p.Amount, p.Currency, p.Status, p.IntentRef, p.PurchaseID,
		refundStatus, refundAmount, refundReason, refundProcessedAt, p.Visible, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByPurchaseID(ctx context.Context, tx repository.Tx, purchaseID string) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE purchase_id=$1 ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, purchaseID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindBlockingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE user_id=$1 AND purpose=$2 AND status IN ('paid','succeeded') ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID, model.PurposePricingPlan)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string, refund model.RefundInfo) error {
	const q = `
UPDATE payments
   SET status='refunded', refund_status=$2, refund_amount=$3, refund_reason=$4, refund_processed_at=$5, updated_at=NOW()
 WHERE id=$1;`

	_, err := execSQL(ctx, r.pool, tx, q, id, refund.Status, refund.Amount, refund.Reason, refund.ProcessedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) VisibleIDs(ctx context.Context, tx repository.Tx, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const q = `SELECT id FROM payments WHERE id = ANY($1) AND visible;`
	rows, err := queryRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[id] = true
	}
	return out, nil
}
