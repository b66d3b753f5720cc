package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/domain/ports/adapter"
	"gym-subscription-platform/internal/domain/ports/repository"
	"gym-subscription-platform/internal/infra/metrics"
)

// refundFraction is the share of the purchase price credited back to the
// wallet on cancellation.
const refundFraction = 0.25

// RefundAmount computes the partial refund in minor units, rounded to the
// nearest whole unit.
func RefundAmount(purchaseAmount int64) int64 {
	return int64(math.Round(float64(purchaseAmount) * refundFraction))
}

// Locker serializes billing operations per user. Satisfied by the redis
// locker; declared here so use cases do not depend on infra.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

func billingLockKey(userID string) string { return "billing:user:" + userID }

// InitiatePurchaseInput carries everything needed to open a checkout.
type InitiatePurchaseInput struct {
	UserID   string
	Email    string
	PlanName string
	PriceID  string // gateway price reference for the plan
	Amount   int64  // minor currency units
	Currency string
}

func (in InitiatePurchaseInput) validate() error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: userId is required", domain.ErrInvalidArgument)
	case in.Email == "":
		return fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	case in.PlanName == "":
		return fmt.Errorf("%w: planName is required", domain.ErrInvalidArgument)
	case in.PriceID == "":
		return fmt.Errorf("%w: priceId is required", domain.ErrInvalidArgument)
	case in.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	return nil
}

// CancelResult is what the cancellation flow reports back to the caller.
type CancelResult struct {
	PurchaseID   string
	PlanName     string
	RefundAmount int64
	Currency     string
	Message      string
}

type PurchaseUseCase interface {
	// Initiate opens a hosted checkout session for the plan and records a
	// pending purchase. Fails with ErrActiveSubscriptionExists when either
	// the purchase store or the payment ledger shows an active one.
	Initiate(ctx context.Context, in InitiatePurchaseInput) (*model.PlanPurchase, string, error)

	// Cancel moves the user's blocking purchase for the plan to refunded,
	// reconciles the payment ledger (updating the linked record or
	// synthesizing a missing one), and credits the partial refund to the
	// user's wallet. All within one transaction.
	Cancel(ctx context.Context, userID, planName, reason string) (*CancelResult, error)

	// ReconcileRefunds synthesizes payment records for refunded purchases
	// that never got one. Returns the number repaired.
	ReconcileRefunds(ctx context.Context, limit int) (int, error)
}

type purchaseUC struct {
	tm        repository.TransactionManager
	purchases repository.PurchaseRepository
	payments  repository.PaymentRepository
	wallets   repository.WalletRepository
	gateway   adapter.CheckoutGateway
	mailer    adapter.Mailer
	locker    Locker

	lockTTL    time.Duration
	adminEmail string
	log        zerolog.Logger
}

var _ PurchaseUseCase = (*purchaseUC)(nil)

func NewPurchaseUseCase(
	tm repository.TransactionManager,
	purchases repository.PurchaseRepository,
	payments repository.PaymentRepository,
	wallets repository.WalletRepository,
	gateway adapter.CheckoutGateway,
	mailer adapter.Mailer,
	locker Locker,
	lockTTL time.Duration,
	adminEmail string,
	log zerolog.Logger,
) PurchaseUseCase {
	return &purchaseUC{
		tm:         tm,
		purchases:  purchases,
		payments:   payments,
		wallets:    wallets,
		gateway:    gateway,
		mailer:     mailer,
		locker:     locker,
		lockTTL:    lockTTL,
		adminEmail: adminEmail,
		log:        log.With().Str("component", "purchase_uc").Logger(),
	}
}

func (u *purchaseUC) Initiate(ctx context.Context, in InitiatePurchaseInput) (*model.PlanPurchase, string, error) {
	if err := in.validate(); err != nil {
		return nil, "", err
	}

	var (
		created     *model.PlanPurchase
		checkoutURL string
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Per-user advisory lock: concurrent initiations for the same user
		// queue up here instead of both passing the uniqueness check.
		if err := u.purchases.LockUser(ctx, tx, in.UserID); err != nil {
			return err
		}

		// Both stores are consulted; a record in either one blocks, so a
		// half-reconciled state never lets a second purchase through.
		if _, err := u.purchases.FindBlockingByUser(ctx, tx, in.UserID); err == nil {
			return domain.ErrActiveSubscriptionExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if _, err := u.payments.FindBlockingByUser(ctx, tx, in.UserID); err == nil {
			return domain.ErrActiveSubscriptionExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		cust, err := u.gateway.EnsureCustomer(ctx, in.Email)
		if err != nil {
			return fmt.Errorf("ensure gateway customer: %w", err)
		}
		sess, err := u.gateway.CreateCheckoutSession(ctx, cust.ID, in.PriceID, map[string]string{
			"user_id":   in.UserID,
			"plan_name": in.PlanName,
		})
		if err != nil {
			return fmt.Errorf("create checkout session: %w", err)
		}

		now := time.Now()
		p := &model.PlanPurchase{
			ID:          uuid.NewString(),
			UserID:      in.UserID,
			PlanName:    in.PlanName,
			Amount:      in.Amount,
			Currency:    in.Currency,
			Status:      model.PurchaseStatusPending,
			CustomerRef: cust.ID,
			CheckoutRef: sess.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := u.purchases.Save(ctx, tx, p); err != nil {
			return err
		}
		created = p
		checkoutURL = sess.URL
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	metrics.IncPurchase(string(model.PurchaseStatusPending))
	u.log.Info().Str("user_id", created.UserID).Str("plan", created.PlanName).
		Str("purchase_id", created.ID).Msg("checkout session created")
	u.notify(in.Email, "Plan purchase started",
		fmt.Sprintf("Checkout opened for plan %q (purchase %s). Complete the payment to activate it.", created.PlanName, created.ID))

	return created, checkoutURL, nil
}

func (u *purchaseUC) Cancel(ctx context.Context, userID, planName, reason string) (*CancelResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidArgument)
	}
	if planName == "" {
		return nil, fmt.Errorf("%w: planName is required", domain.ErrInvalidArgument)
	}

	// Serialize against webhook confirmation for the same user so a late
	// confirmation cannot interleave with the refund.
	key := billingLockKey(userID)
	token, err := u.locker.TryLock(ctx, key, u.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := u.locker.Unlock(context.Background(), key, token); uerr != nil {
			u.log.Warn().Err(uerr).Str("key", key).Msg("failed to release billing lock")
		}
	}()

	var res *CancelResult
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.purchases.FindLatestByUserAndPlan(ctx, tx, userID, planName)
		if err != nil {
			return err
		}
		if !p.Status.Blocking() {
			return domain.ErrNotFound
		}

		refund := RefundAmount(p.Amount)
		now := time.Now()

		// Plural update on purpose: if a race ever produced duplicate active
		// purchases, cancellation sweeps them all.
		updated, err := u.purchases.MarkRefundedByUserAndPlan(ctx, tx, userID, planName, now)
		if err != nil {
			return err
		}
		if updated > 1 {
			u.log.Warn().Str("user_id", userID).Str("plan", planName).
				Int64("rows", updated).Msg("multiple active purchases refunded at once")
		}

		paymentID, err := u.refundPayment(ctx, tx, p, refund, reason, now)
		if err != nil {
			return err
		}
		if err := u.creditWallet(ctx, tx, p, refund, paymentID, now); err != nil {
			return err
		}

		res = &CancelResult{
			PurchaseID:   p.ID,
			PlanName:     p.PlanName,
			RefundAmount: refund,
			Currency:     p.Currency,
			Message:      fmt.Sprintf("plan %q cancelled; %d credited to wallet", p.PlanName, refund),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncPurchase(string(model.PurchaseStatusRefunded))
	metrics.IncRefund(res.Currency, res.RefundAmount)
	u.log.Info().Str("user_id", userID).Str("plan", planName).
		Int64("refund", res.RefundAmount).Msg("purchase cancelled and refunded")
	return res, nil
}

// refundPayment marks the purchase's payment record refunded, or synthesizes
// one when the webhook never wrote it (older purchases, or a crash between
// confirmation steps). Returns the payment record id.
func (u *purchaseUC) refundPayment(ctx context.Context, tx repository.Tx, p *model.PlanPurchase, refund int64, reason string, now time.Time) (string, error) {
	info := model.RefundInfo{
		Status:      string(model.PaymentStatusRefunded),
		Amount:      refund,
		Reason:      reason,
		ProcessedAt: &now,
	}

	pay, err := u.payments.FindByPurchaseID(ctx, tx, p.ID)
	if errors.Is(err, domain.ErrNotFound) {
		purchaseID := p.ID
		pay = &model.PaymentRecord{
			ID:         uuid.NewString(),
			UserID:     p.UserID,
			Purpose:    model.PurposePricingPlan,
			Amount:     p.Amount,
			Currency:   p.Currency,
			Status:     model.PaymentStatusRefunded,
			PurchaseID: &purchaseID,
			Refund:     &info,
			Visible:    true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		u.log.Info().Str("purchase_id", p.ID).Msg("synthesizing missing payment record for refund")
		return pay.ID, u.payments.Save(ctx, tx, pay)
	}
	if err != nil {
		return "", err
	}
	return pay.ID, u.payments.MarkRefunded(ctx, tx, pay.ID, info)
}

// creditWallet appends the refund transaction, creating the wallet lazily.
func (u *purchaseUC) creditWallet(ctx context.Context, tx repository.Tx, p *model.PlanPurchase, refund int64, paymentID string, now time.Time) error {
	w, err := u.wallets.FindByUser(ctx, tx, p.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		w = &model.Wallet{
			ID:        uuid.NewString(),
			UserID:    p.UserID,
			Currency:  p.Currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := u.wallets.Upsert(ctx, tx, w); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	pid := paymentID
	t := &model.WalletTransaction{
		ID:          ulid.Make().String(),
		WalletID:    w.ID,
		Type:        model.TransactionTypeRefund,
		Amount:      refund,
		Description: fmt.Sprintf("25%% refund for plan %s", p.PlanName),
		PaymentID:   &pid,
		Status:      model.TransactionStatusCompleted,
		CreatedAt:   now,
	}
	if err := u.wallets.AppendTransaction(ctx, tx, t); err != nil {
		return err
	}
	metrics.IncWalletTransaction(string(model.TransactionTypeRefund))

	// Stored balance is advisory; reads fold the log.
	return u.wallets.UpdateBalance(ctx, tx, w.ID, w.Balance+refund)
}

func (u *purchaseUC) ReconcileRefunds(ctx context.Context, limit int) (int, error) {
	stale, err := u.purchases.ListRefundedWithoutPayment(ctx, nil, limit)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, p := range stale {
		p := p
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			_, err := u.refundPayment(ctx, tx, p, RefundAmount(p.Amount), "refund ledger repair", time.Now())
			return err
		})
		if err != nil {
			u.log.Error().Err(err).Str("purchase_id", p.ID).Msg("refund repair failed")
			continue
		}
		repaired++
	}
	return repaired, nil
}

// notify sends fire-and-forget emails to the user and the admin inbox.
func (u *purchaseUC) notify(userEmail, subject, body string) {
	recipients := make([]string, 0, 2)
	if userEmail != "" {
		recipients = append(recipients, userEmail)
	}
	if u.adminEmail != "" {
		recipients = append(recipients, u.adminEmail)
	}
	if u.mailer == nil || len(recipients) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, to := range recipients {
			if err := u.mailer.Send(ctx, to, subject, body); err != nil {
				u.log.Warn().Err(err).Str("to", to).Msg("notification mail failed")
			}
		}
	}()
}
