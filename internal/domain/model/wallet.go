package model

import "time"

type TransactionType string

const (
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeCredit     TransactionType = "credit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

const TransactionStatusCompleted = "completed"

// WalletTransaction is one entry of the append-only per-wallet log.
// IDs are ULIDs so the log sorts by creation time.
type WalletTransaction struct {
	ID          string
	WalletID    string
	Type        TransactionType
	Amount      int64 // minor currency units, always positive; Type decides the sign
	Description string
	PaymentID   *string // optional link to a PaymentRecord
	Status      string
	CreatedAt   time.Time
}

// Signed returns the transaction amount with the sign implied by its type.
func (t *WalletTransaction) Signed() int64 {
	if t.Type == TransactionTypeWithdrawal {
		return -t.Amount
	}
	return t.Amount
}

// Wallet holds a user's balance. The stored Balance column is advisory:
// reads recompute it by folding the transaction log, excluding entries
// whose linked PaymentRecord has been deleted or hidden.
type Wallet struct {
	ID        string // UUID
	UserID    string
	Currency  string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	// Populated on reads; not a stored column.
	Transactions []*WalletTransaction
}
