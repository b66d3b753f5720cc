package postgres

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct{ pool *pgxpool.Pool }

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseCols = `id, user_id, plan_name, amount, currency, status, customer_ref, checkout_ref, created_at, updated_at, paid_at, refunded_at`

func scanPurchase(row pgx.Row) (*model.PlanPurchase, error) {
	p := &model.PlanPurchase{}
	if err := row.Scan(&p.ID, &p.UserID, &p.PlanName, &p.Amount, &p.Currency, &p.Status, &p.CustomerRef, &p.CheckoutRef, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt, &p.RefundedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *purchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.PlanPurchase) error {
	const q = `
INSERT INTO plan_purchases (
  id, user_id, plan_name, amount, currency, status, customer_ref, checkout_ref, created_at, updated_at, paid_at, refunded_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (id) DO UPDATE SET
  status=$6, customer_ref=$7, checkout_ref=$8, updated_at=$10, paid_at=$11, refunded_at=$12;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.PlanName, p.Amount, p.Currency, p.Status, p.CustomerRef, p.CheckoutRef, p.CreatedAt, p.UpdatedAt, p.PaidAt, p.RefundedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PlanPurchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM plan_purchases WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) FindBlockingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.PlanPurchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM plan_purchases WHERE user_id=$1 AND status IN ('paid','active') ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) FindLatestByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planName string) (*model.PlanPurchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM plan_purchases WHERE user_id=$1 AND plan_name=$2 ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID, planName)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) MarkPaidIfPending(ctx context.Context, tx repository.Tx, id string, paidAt time.Time) (bool, error) {
	const q = `
UPDATE plan_purchases
   SET status='paid', paid_at=$2, updated_at=NOW()
 WHERE id=$1 AND status='pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, paidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *purchaseRepo) MarkRefundedByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planName string, refundedAt time.Time) (int64, error) {
	const q = `
UPDATE plan_purchases
   SET status='refunded', refunded_at=$3, updated_at=NOW()
 WHERE user_id=$1 AND plan_name=$2 AND status IN ('paid','active');`

	cmd, err := execSQL(ctx, r.pool, tx, q, userID, planName, refundedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}

func (r *purchaseRepo) ListRefundedWithoutPayment(ctx context.Context, tx repository.Tx, limit int) ([]*model.PlanPurchase, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + purchaseCols + `
  FROM plan_purchases pp
 WHERE pp.status='refunded'
   AND NOT EXISTS (
     SELECT 1 FROM payments p WHERE p.purchase_id = pp.id AND p.status = 'refunded'
   )
 ORDER BY pp.refunded_at ASC NULLS FIRST
 LIMIT $1;`

	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PlanPurchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// LockUser acquires pg_advisory_xact_lock keyed on the user id hash; released
// automatically at transaction end.
func (r *purchaseRepo) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	if _, ok := tx.(pgx.Tx); !ok {
		return domain.ErrInvalidExecContext
	}
	_, err := execSQL(ctx, r.pool, tx, `SELECT pg_advisory_xact_lock($1);`, hashToInt64(userID))
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}
