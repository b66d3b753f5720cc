package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		walletTransactionsTotal,
		walletRejectedWithdrawals,
	)
}

var (
	walletTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Wallet transactions appended, by type (refund/credit/withdrawal).",
		},
		[]string{"type"},
	)

	walletRejectedWithdrawals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_rejected_withdrawals_total",
			Help: "Withdrawals rejected because they would drive the balance negative.",
		},
	)
)

func IncWalletTransaction(txType string) {
	walletTransactionsTotal.WithLabelValues(norm(txType)).Inc()
}

func IncRejectedWithdrawal() {
	walletRejectedWithdrawals.Inc()
}
