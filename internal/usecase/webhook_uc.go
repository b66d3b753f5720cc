package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/domain/ports/repository"
	"gym-subscription-platform/internal/infra/metrics"
)

type WebhookUseCase interface {
	// HandleEvent applies a verified gateway event: pending -> paid on the
	// matching purchase plus a payment ledger entry. Unknown event types,
	// events with unresolvable metadata, and redelivered events are
	// acknowledged without side effects (a nil return means "stop retrying").
	HandleEvent(ctx context.Context, ev *model.GatewayEvent) error
}

type webhookUC struct {
	tm        repository.TransactionManager
	purchases repository.PurchaseRepository
	payments  repository.PaymentRepository
	events    repository.WebhookEventRepository
	locker    Locker
	lockTTL   time.Duration
	log       zerolog.Logger
}

var _ WebhookUseCase = (*webhookUC)(nil)

func NewWebhookUseCase(
	tm repository.TransactionManager,
	purchases repository.PurchaseRepository,
	payments repository.PaymentRepository,
	events repository.WebhookEventRepository,
	locker Locker,
	lockTTL time.Duration,
	log zerolog.Logger,
) WebhookUseCase {
	return &webhookUC{
		tm:        tm,
		purchases: purchases,
		payments:  payments,
		events:    events,
		locker:    locker,
		lockTTL:   lockTTL,
		log:       log.With().Str("component", "webhook_uc").Logger(),
	}
}

func (u *webhookUC) HandleEvent(ctx context.Context, ev *model.GatewayEvent) error {
	switch ev.Type {
	case model.EventTypeCheckoutCompleted, model.EventTypeIntentSucceeded:
	default:
		u.log.Debug().Str("type", ev.Type).Msg("ignoring unhandled event type")
		metrics.IncWebhookEvent(ev.Type, "skipped")
		return nil
	}

	// Retrying cannot fill in metadata the gateway never sent, so ack.
	if ev.UserID == "" || ev.PlanName == "" || ev.IntentRef == "" {
		u.log.Warn().Str("event_id", ev.ID).Str("type", ev.Type).
			Msg("event metadata unresolvable; skipping")
		metrics.IncWebhookEvent(ev.Type, "skipped")
		return nil
	}

	// Same per-user lock as cancellation, so a refund in flight and a late
	// confirmation never interleave.
	key := billingLockKey(ev.UserID)
	token, err := u.locker.TryLock(ctx, key, u.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := u.locker.Unlock(context.Background(), key, token); uerr != nil {
			u.log.Warn().Err(uerr).Str("key", key).Msg("failed to release billing lock")
		}
	}()

	outcome := "processed"
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		fresh, err := u.events.MarkProcessed(ctx, tx, &model.WebhookEvent{
			ID:         ev.ID,
			Type:       ev.Type,
			ReceivedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		if !fresh {
			u.log.Info().Str("event_id", ev.ID).Msg("duplicate event delivery")
			outcome = "duplicate"
			return nil
		}

		p, err := u.purchases.FindLatestByUserAndPlan(ctx, tx, ev.UserID, ev.PlanName)
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("event_id", ev.ID).Str("user_id", ev.UserID).
				Str("plan", ev.PlanName).Msg("no purchase matches event metadata")
			outcome = "skipped"
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now()
		confirmed, err := u.purchases.MarkPaidIfPending(ctx, tx, p.ID, now)
		if err != nil {
			return err
		}
		if !confirmed {
			u.log.Info().Str("purchase_id", p.ID).Str("status", string(p.Status)).
				Msg("purchase not pending; confirmation is a no-op")
		}

		// One ledger entry per purchase.
		if _, err := u.payments.FindByPurchaseID(ctx, tx, p.ID); err == nil {
			return nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		amount := ev.Amount
		if amount == 0 {
			amount = p.Amount
		}
		currency := ev.Currency
		if currency == "" {
			currency = p.Currency
		}
		purchaseID := p.ID
		return u.payments.Save(ctx, tx, &model.PaymentRecord{
			ID:         uuid.NewString(),
			UserID:     p.UserID,
			Purpose:    model.PurposePricingPlan,
			Amount:     amount,
			Currency:   currency,
			Status:     model.PaymentStatusPaid,
			IntentRef:  ev.IntentRef,
			PurchaseID: &purchaseID,
			Visible:    true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		metrics.IncWebhookEvent(ev.Type, "error")
		return err
	}

	metrics.IncWebhookEvent(ev.Type, outcome)
	if outcome == "processed" {
		metrics.IncPurchase(string(model.PurchaseStatusPaid))
		u.log.Info().Str("event_id", ev.ID).Str("user_id", ev.UserID).
			Str("plan", ev.PlanName).Msg("payment confirmed")
	}
	return nil
}
