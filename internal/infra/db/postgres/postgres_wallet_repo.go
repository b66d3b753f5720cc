package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/domain/ports/repository"
)

var _ repository.WalletRepository = (*walletRepo)(nil)

type walletRepo struct{ pool *pgxpool.Pool }

func NewWalletRepo(pool *pgxpool.Pool) *walletRepo {
	return &walletRepo{pool: pool}
}

func (r *walletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	q := `SELECT id, user_id, currency, balance, created_at, updated_at FROM wallets WHERE user_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}

	w := &model.Wallet{}
	if err := row.Scan(&w.ID, &w.UserID, &w.Currency, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return w, nil
}

func (r *walletRepo) Upsert(ctx context.Context, tx repository.Tx, w *model.Wallet) error {
	// Keyed by user_id: two concurrent first-access creates collapse into one row.
	const q = `
INSERT INTO wallets (id, user_id, currency, balance, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id) DO UPDATE SET updated_at=$6;`

	_, err := execSQL(ctx, r.pool, tx, q, w.ID, w.UserID, w.Currency, w.Balance, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *walletRepo) AppendTransaction(ctx context.Context, tx repository.Tx, t *model.WalletTransaction) error {
	const q = `
INSERT INTO wallet_transactions (id, wallet_id, type, amount, description, payment_id, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.WalletID, t.Type, t.Amount, t.Description, t.PaymentID, t.Status, t.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, tx repository.Tx, walletID string) ([]*model.WalletTransaction, error) {
	// ULID ids sort chronologically, so ordering by id keeps insertion order.
	const q = `SELECT id, wallet_id, type, amount, description, payment_id, status, created_at FROM wallet_transactions WHERE wallet_id=$1 ORDER BY id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, walletID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.WalletTransaction
	for rows.Next() {
		t := new(model.WalletTransaction)
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Description, &t.PaymentID, &t.Status, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *walletRepo) UpdateBalance(ctx context.Context, tx repository.Tx, walletID string, balance int64) error {
	const q = `UPDATE wallets SET balance=$2, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, walletID, balance)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
