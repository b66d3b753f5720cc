package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		purchasesTotal,
		refundsTotal,
		refundAmountTotal,
		webhookEventsTotal,
	)
}

var (
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_purchases_total",
			Help: "Plan purchases by status (pending/paid/refunded).",
		},
		[]string{"status"},
	)

	refundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Number of processed cancellations with refund.",
		},
	)

	refundAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_amount_total",
			Help: "Total refunded value in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Gateway webhook events by type and outcome (processed/skipped/duplicate).",
		},
		[]string{"type", "outcome"},
	)
)

func IncPurchase(status string) {
	purchasesTotal.WithLabelValues(norm(status)).Inc()
}

func IncRefund(currency string, amount int64) {
	refundsTotal.Inc()
	refundAmountTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}
