package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gym-subscription-platform/internal/usecase"
)

// RefundReconciler periodically scans for refunded purchases that have no
// refunded payment record and synthesizes the missing entries. This covers
// cancellations processed before the ledger existed and crashes between the
// refund steps.
type RefundReconciler struct {
	uc       usecase.PurchaseUseCase
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

func NewRefundReconciler(uc usecase.PurchaseUseCase, interval time.Duration, batch int, log zerolog.Logger) *RefundReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &RefundReconciler{
		uc:       uc,
		interval: interval,
		batch:    batch,
		log:      log.With().Str("component", "refund_reconciler").Logger(),
	}
}

func (w *RefundReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *RefundReconciler) tick(ctx context.Context) {
	repaired, err := w.uc.ReconcileRefunds(ctx, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("refund reconciliation scan failed")
		return
	}
	if repaired > 0 {
		w.log.Info().Int("repaired", repaired).Msg("synthesized missing payment records")
	}
}
