//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/usecase"
)

type webhookUCTestDeps struct {
	purchases *MockPurchaseRepo
	payments  *MockPaymentRepo
	events    *MockWebhookEventRepo
	locker    *MockLocker
	tm        *MockTxManager
}

func newWebhookUCDeps() *webhookUCTestDeps {
	return &webhookUCTestDeps{
		purchases: NewMockPurchaseRepo(),
		payments:  NewMockPaymentRepo(),
		events:    NewMockWebhookEventRepo(),
		locker:    NewMockLocker(),
		tm:        NewMockTxManager(),
	}
}

func (d *webhookUCTestDeps) build() usecase.WebhookUseCase {
	return usecase.NewWebhookUseCase(
		d.tm, d.purchases, d.payments, d.events, d.locker, time.Minute, newTestLogger(),
	)
}

func checkoutEvent() *model.GatewayEvent {
	return &model.GatewayEvent{
		ID:        "evt_1",
		Type:      model.EventTypeCheckoutCompleted,
		IntentRef: "pi_123",
		Amount:    4000,
		Currency:  "usd",
		UserID:    "user-1",
		PlanName:  "gold",
	}
}

func pendingPurchase() *model.PlanPurchase {
	return &model.PlanPurchase{
		ID: "p-1", UserID: "user-1", PlanName: "gold",
		Amount: 4000, Currency: "usd",
		Status: model.PurchaseStatusPending, CreatedAt: time.Now(),
	}
}

func TestWebhookUseCase_HandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("should confirm a pending purchase and write the ledger entry", func(t *testing.T) {
		deps := newWebhookUCDeps()
		deps.purchases.Save(ctx, nil, pendingPurchase())

		uc := deps.build()
		if err := uc.HandleEvent(ctx, checkoutEvent()); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		p, _ := deps.purchases.FindByID(ctx, nil, "p-1")
		if p.Status != model.PurchaseStatusPaid {
			t.Errorf("expected purchase paid, got %s", p.Status)
		}
		if p.PaidAt == nil {
			t.Error("expected paidAt to be set")
		}

		pay, err := deps.payments.FindByPurchaseID(ctx, nil, "p-1")
		if err != nil {
			t.Fatalf("expected a payment record: %v", err)
		}
		if pay.Status != model.PaymentStatusPaid {
			t.Errorf("expected payment paid, got %s", pay.Status)
		}
		if pay.IntentRef != "pi_123" {
			t.Errorf("expected intent ref recorded, got %q", pay.IntentRef)
		}
		if pay.Amount != 4000 || pay.Currency != "usd" {
			t.Errorf("unexpected amount/currency: %d %s", pay.Amount, pay.Currency)
		}
		if !pay.Visible {
			t.Error("new ledger entries must be visible")
		}
	})

	t.Run("should make redelivered events a no-op", func(t *testing.T) {
		deps := newWebhookUCDeps()
		deps.purchases.Save(ctx, nil, pendingPurchase())

		uc := deps.build()
		if err := uc.HandleEvent(ctx, checkoutEvent()); err != nil {
			t.Fatalf("first delivery: %v", err)
		}
		if err := uc.HandleEvent(ctx, checkoutEvent()); err != nil {
			t.Fatalf("second delivery: %v", err)
		}

		if n := deps.payments.Len(); n != 1 {
			t.Errorf("expected exactly 1 payment record after redelivery, got %d", n)
		}
	})

	t.Run("should not duplicate the ledger entry for a second confirming event", func(t *testing.T) {
		// Distinct event id, same purchase: e.g. checkout.session.completed
		// followed by payment_intent.succeeded.
		deps := newWebhookUCDeps()
		deps.purchases.Save(ctx, nil, pendingPurchase())

		uc := deps.build()
		if err := uc.HandleEvent(ctx, checkoutEvent()); err != nil {
			t.Fatalf("first event: %v", err)
		}
		second := checkoutEvent()
		second.ID = "evt_2"
		second.Type = model.EventTypeIntentSucceeded
		if err := uc.HandleEvent(ctx, second); err != nil {
			t.Fatalf("second event: %v", err)
		}

		if n := deps.payments.Len(); n != 1 {
			t.Errorf("expected exactly 1 payment record, got %d", n)
		}
	})

	t.Run("should acknowledge unknown event types without touching state", func(t *testing.T) {
		deps := newWebhookUCDeps()
		deps.purchases.Save(ctx, nil, pendingPurchase())

		ev := checkoutEvent()
		ev.Type = "invoice.created"

		uc := deps.build()
		if err := uc.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("expected ack, got: %v", err)
		}
		p, _ := deps.purchases.FindByID(ctx, nil, "p-1")
		if p.Status != model.PurchaseStatusPending {
			t.Errorf("purchase should stay pending, got %s", p.Status)
		}
	})

	t.Run("should acknowledge events with unresolvable metadata", func(t *testing.T) {
		deps := newWebhookUCDeps()
		deps.purchases.Save(ctx, nil, pendingPurchase())

		ev := checkoutEvent()
		ev.UserID = ""

		uc := deps.build()
		if err := uc.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("expected ack, got: %v", err)
		}
		if n := deps.payments.Len(); n != 0 {
			t.Errorf("expected no ledger entries, got %d", n)
		}
	})

	t.Run("should acknowledge when no purchase matches the metadata", func(t *testing.T) {
		deps := newWebhookUCDeps()

		uc := deps.build()
		if err := uc.HandleEvent(ctx, checkoutEvent()); err != nil {
			t.Fatalf("expected ack, got: %v", err)
		}
		if n := deps.payments.Len(); n != 0 {
			t.Errorf("expected no ledger entries, got %d", n)
		}
	})

	t.Run("should surface lock contention so the gateway retries", func(t *testing.T) {
		deps := newWebhookUCDeps()
		deps.purchases.Save(ctx, nil, pendingPurchase())
		if _, err := deps.locker.TryLock(ctx, "billing:user:user-1", time.Minute); err != nil {
			t.Fatalf("lock setup: %v", err)
		}

		uc := deps.build()
		err := uc.HandleEvent(ctx, checkoutEvent())
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			t.Fatalf("expected ErrLockNotAcquired, got %v", err)
		}

		p, _ := deps.purchases.FindByID(ctx, nil, "p-1")
		if p.Status != model.PurchaseStatusPending {
			t.Errorf("purchase should stay pending, got %s", p.Status)
		}
	})

	t.Run("should leave a refunded purchase refunded on late confirmation", func(t *testing.T) {
		deps := newWebhookUCDeps()
		p := pendingPurchase()
		p.Status = model.PurchaseStatusRefunded
		deps.purchases.Save(ctx, nil, p)
		purchaseID := p.ID
		deps.payments.Seed(&model.PaymentRecord{
			ID: "pay-1", UserID: "user-1", Purpose: model.PurposePricingPlan,
			Status: model.PaymentStatusRefunded, PurchaseID: &purchaseID, Visible: true,
		})

		uc := deps.build()
		if err := uc.HandleEvent(ctx, checkoutEvent()); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		got, _ := deps.purchases.FindByID(ctx, nil, "p-1")
		if got.Status != model.PurchaseStatusRefunded {
			t.Errorf("refunded purchase must stay refunded, got %s", got.Status)
		}
		if n := deps.payments.Len(); n != 1 {
			t.Errorf("expected the refunded ledger entry to stand alone, got %d", n)
		}
	})
}
