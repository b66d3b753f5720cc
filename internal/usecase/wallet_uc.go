package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/domain/ports/repository"
	"gym-subscription-platform/internal/infra/metrics"
)

// WalletTransactionInput describes a manual credit or withdrawal.
type WalletTransactionInput struct {
	UserID      string
	Type        model.TransactionType
	Amount      int64 // minor currency units, positive
	Description string
	PurchaseID  string // optional; linked through the purchase's payment record
}

func (in WalletTransactionInput) validate() error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: userId is required", domain.ErrInvalidArgument)
	case in.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	switch in.Type {
	case model.TransactionTypeCredit, model.TransactionTypeWithdrawal, model.TransactionTypeRefund:
		return nil
	default:
		return fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidArgument, in.Type)
	}
}

type WalletUseCase interface {
	// Get returns the user's wallet with its visible transactions, balance
	// derived by folding the log. Creates an empty wallet on first access.
	Get(ctx context.Context, userID string) (*model.Wallet, error)

	// AddTransaction appends a manual entry. Withdrawals exceeding the
	// derived balance fail with ErrInsufficientBalance and change nothing.
	// Returns the appended transaction and the new balance.
	AddTransaction(ctx context.Context, in WalletTransactionInput) (*model.WalletTransaction, int64, error)
}

type walletUC struct {
	tm       repository.TransactionManager
	wallets  repository.WalletRepository
	payments repository.PaymentRepository

	currency string // assigned to wallets created lazily
	log      zerolog.Logger
}

var _ WalletUseCase = (*walletUC)(nil)

func NewWalletUseCase(
	tm repository.TransactionManager,
	wallets repository.WalletRepository,
	payments repository.PaymentRepository,
	currency string,
	log zerolog.Logger,
) WalletUseCase {
	return &walletUC{
		tm:       tm,
		wallets:  wallets,
		payments: payments,
		currency: currency,
		log:      log.With().Str("component", "wallet_uc").Logger(),
	}
}

func (u *walletUC) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidArgument)
	}

	w, txs, err := u.load(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	derived := foldBalance(txs)
	if derived != w.Balance {
		// Keep the advisory column close to the truth; failures only cost
		// freshness, never correctness.
		if uerr := u.wallets.UpdateBalance(ctx, nil, w.ID, derived); uerr != nil {
			u.log.Warn().Err(uerr).Str("wallet_id", w.ID).Msg("stored balance refresh failed")
		}
	}

	w.Balance = derived
	w.Transactions = txs
	return w, nil
}

func (u *walletUC) AddTransaction(ctx context.Context, in WalletTransactionInput) (*model.WalletTransaction, int64, error) {
	if err := in.validate(); err != nil {
		return nil, 0, err
	}

	var (
		appended   *model.WalletTransaction
		newBalance int64
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		w, txs, err := u.load(ctx, tx, in.UserID)
		if err != nil {
			return err
		}
		balance := foldBalance(txs)

		if in.Type == model.TransactionTypeWithdrawal && in.Amount > balance {
			metrics.IncRejectedWithdrawal()
			return fmt.Errorf("%w: balance %d, requested %d", domain.ErrInsufficientBalance, balance, in.Amount)
		}

		t := &model.WalletTransaction{
			ID:          ulid.Make().String(),
			WalletID:    w.ID,
			Type:        in.Type,
			Amount:      in.Amount,
			Description: in.Description,
			PaymentID:   u.resolvePaymentLink(ctx, tx, in.PurchaseID),
			Status:      model.TransactionStatusCompleted,
			CreatedAt:   time.Now(),
		}
		if err := u.wallets.AppendTransaction(ctx, tx, t); err != nil {
			return err
		}

		newBalance = balance + t.Signed()
		if err := u.wallets.UpdateBalance(ctx, tx, w.ID, newBalance); err != nil {
			return err
		}
		appended = t
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	metrics.IncWalletTransaction(string(in.Type))
	u.log.Info().Str("user_id", in.UserID).Str("type", string(in.Type)).
		Int64("amount", in.Amount).Int64("balance", newBalance).Msg("wallet transaction appended")
	return appended, newBalance, nil
}

// load fetches (or lazily creates) the wallet and its visible transactions.
// Entries whose linked payment record was deleted or hidden are dropped.
func (u *walletUC) load(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, []*model.WalletTransaction, error) {
	w, err := u.wallets.FindByUser(ctx, tx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		now := time.Now()
		w = &model.Wallet{
			ID:        uuid.NewString(),
			UserID:    userID,
			Currency:  u.currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := u.wallets.Upsert(ctx, tx, w); err != nil {
			return nil, nil, err
		}
		return w, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	all, err := u.wallets.ListTransactions(ctx, tx, w.ID)
	if err != nil {
		return nil, nil, err
	}

	linked := make([]string, 0, len(all))
	for _, t := range all {
		if t.PaymentID != nil {
			linked = append(linked, *t.PaymentID)
		}
	}
	visible := map[string]bool{}
	if len(linked) > 0 {
		visible, err = u.payments.VisibleIDs(ctx, tx, linked)
		if err != nil {
			return nil, nil, err
		}
	}

	kept := make([]*model.WalletTransaction, 0, len(all))
	for _, t := range all {
		if t.PaymentID != nil && !visible[*t.PaymentID] {
			continue
		}
		kept = append(kept, t)
	}
	return w, kept, nil
}

func (u *walletUC) resolvePaymentLink(ctx context.Context, tx repository.Tx, purchaseID string) *string {
	if purchaseID == "" {
		return nil
	}
	pay, err := u.payments.FindByPurchaseID(ctx, tx, purchaseID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Err(err).Str("purchase_id", purchaseID).Msg("payment link lookup failed")
		}
		return nil
	}
	id := pay.ID
	return &id
}

func foldBalance(txs []*model.WalletTransaction) int64 {
	var sum int64
	for _, t := range txs {
		sum += t.Signed()
	}
	return sum
}
