package repository

import (
	"context"

	"gym-subscription-platform/internal/domain/model"
)

type WalletRepository interface {
	// FindByUser returns the user's wallet without its transactions,
	// or ErrNotFound.
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Wallet, error)

	// Upsert creates the wallet on first access, keyed by user id.
	Upsert(ctx context.Context, tx Tx, w *model.Wallet) error

	AppendTransaction(ctx context.Context, tx Tx, t *model.WalletTransaction) error
	ListTransactions(ctx context.Context, tx Tx, walletID string) ([]*model.WalletTransaction, error)

	// UpdateBalance writes the advisory stored balance. Reads never trust it.
	UpdateBalance(ctx context.Context, tx Tx, walletID string, balance int64) error
}
