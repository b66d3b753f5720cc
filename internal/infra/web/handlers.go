package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/infra/logging"
	"gym-subscription-platform/internal/infra/payment"
	"gym-subscription-platform/internal/usecase"
)

const maxWebhookBody = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes. Anything not in the
// taxonomy is a 500; the gateway and callers retry those.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrActiveSubscriptionExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, public string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg(public)
		writeError(w, status, public)
		return
	}
	writeError(w, status, err.Error())
}

// ===== Purchases =====

type purchaseInitiateRequest struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	PlanName string `json:"planName"`
	PriceID  string `json:"priceId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (s *Server) handleInitiatePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseInitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Currency == "" {
		req.Currency = s.cfg.Gateway.Currency
	}

	p, checkoutURL, err := s.purchaseUC.Initiate(r.Context(), usecase.InitiatePurchaseInput{
		UserID:   req.UserID,
		Email:    req.Email,
		PlanName: req.PlanName,
		PriceID:  req.PriceID,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		s.fail(w, r, err, "failed to initiate purchase")
		return
	}

	// planId mirrors purchaseId for callers of the legacy contract, where
	// the created purchase document doubled as the plan reference.
	writeJSON(w, http.StatusCreated, struct {
		Success     bool   `json:"success"`
		PurchaseID  string `json:"purchaseId"`
		PlanID      string `json:"planId"`
		Status      string `json:"status"`
		CheckoutURL string `json:"checkoutUrl"`
	}{
		Success:     true,
		PurchaseID:  p.ID,
		PlanID:      p.ID,
		Status:      string(p.Status),
		CheckoutURL: checkoutURL,
	})
}

type purchaseCancelRequest struct {
	UserID   string `json:"userId"`
	PlanName string `json:"planName"`
	Reason   string `json:"reason"`
}

func (s *Server) handleCancelPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "user requested cancellation"
	}

	res, err := s.purchaseUC.Cancel(r.Context(), req.UserID, req.PlanName, req.Reason)
	if err != nil {
		s.fail(w, r, err, "failed to cancel purchase")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success      bool   `json:"success"`
		PurchaseID   string `json:"purchaseId"`
		RefundAmount int64  `json:"refundAmount"`
		Currency     string `json:"currency"`
		Message      string `json:"message"`
	}{
		Success:      true,
		PurchaseID:   res.PurchaseID,
		RefundAmount: res.RefundAmount,
		Currency:     res.Currency,
		Message:      res.Message,
	})
}

// ===== Gateway webhook =====

func (s *Server) handleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if !payment.VerifyWebhookSignature(s.cfg.Gateway.WebhookSecret, body, sig) {
		logging.With(r.Context(), s.log).Warn().Msg("webhook signature mismatch")
		writeError(w, http.StatusBadRequest, domain.ErrSignatureMismatch.Error())
		return
	}

	// The signature proved the sender; a payload that still cannot parse
	// will never parse on redelivery, so acknowledge and drop it.
	ev, err := payment.ParseEvent(body)
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("dropping unparseable webhook payload")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err := s.webhookUC.HandleEvent(r.Context(), ev); err != nil {
		// Non-2xx makes the gateway redeliver; dedup makes that safe.
		s.fail(w, r, err, "failed to process event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// ===== Wallet =====

type walletTransactionView struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description,omitempty"`
	PaymentID   *string   `json:"paymentId,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

func walletTransactionViews(txs []*model.WalletTransaction) []walletTransactionView {
	views := make([]walletTransactionView, 0, len(txs))
	for _, t := range txs {
		views = append(views, walletTransactionView{
			ID:          t.ID,
			Type:        string(t.Type),
			Amount:      t.Signed(),
			Description: t.Description,
			PaymentID:   t.PaymentID,
			Status:      t.Status,
			CreatedAt:   t.CreatedAt,
		})
	}
	return views
}

type walletView struct {
	ID           string                  `json:"id"`
	UserID       string                  `json:"userId"`
	Currency     string                  `json:"currency"`
	Balance      int64                   `json:"balance"`
	Transactions []walletTransactionView `json:"transactions"`
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	wallet, err := s.walletUC.Get(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err, "failed to load wallet")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool       `json:"success"`
		Wallet  walletView `json:"wallet"`
	}{
		Success: true,
		Wallet: walletView{
			ID:           wallet.ID,
			UserID:       wallet.UserID,
			Currency:     wallet.Currency,
			Balance:      wallet.Balance,
			Transactions: walletTransactionViews(wallet.Transactions),
		},
	})
}

type walletTransactionRequest struct {
	UserID      string `json:"userId"`
	Type        string `json:"type"` // credit | withdrawal
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	PurchaseID  string `json:"purchaseId"`
}

func (s *Server) handleWalletTransaction(w http.ResponseWriter, r *http.Request) {
	var req walletTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, newBalance, err := s.walletUC.AddTransaction(r.Context(), usecase.WalletTransactionInput{
		UserID:      req.UserID,
		Type:        model.TransactionType(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
		PurchaseID:  req.PurchaseID,
	})
	if err != nil {
		s.fail(w, r, err, "failed to append wallet transaction")
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Success     bool                  `json:"success"`
		NewBalance  int64                 `json:"newBalance"`
		Transaction walletTransactionView `json:"transaction"`
	}{
		Success:     true,
		NewBalance:  newBalance,
		Transaction: walletTransactionViews([]*model.WalletTransaction{tx})[0],
	})
}
