package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"gym-subscription-platform/internal/domain/model"
)

// VerifyWebhookSignature checks the provider signature header against the
// shared secret. Header format: "t=<unix>,v1=<hex>"; the signed payload is
// "<t>.<raw body>" under HMAC-SHA256.
func VerifyWebhookSignature(secret string, payload []byte, header string) bool {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sig = kv[1]
		}
	}
	if ts == "" || sig == "" {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}

// webhookEnvelope mirrors the provider's event JSON shape.
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
			Amount        int64  `json:"amount"`
			AmountTotal   int64  `json:"amount_total"`
			Currency      string `json:"currency"`
			Metadata      struct {
				UserID   string `json:"user_id"`
				PlanName string `json:"plan_name"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook payload into the provider-agnostic
// event model. It does not validate metadata; events with missing user or
// plan are the use case's call to skip.
func ParseEvent(payload []byte) (*model.GatewayEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("webhook payload missing id or type")
	}

	ev := &model.GatewayEvent{
		ID:       env.ID,
		Type:     env.Type,
		Currency: env.Data.Object.Currency,
		UserID:   env.Data.Object.Metadata.UserID,
		PlanName: env.Data.Object.Metadata.PlanName,
	}

	// Checkout sessions reference the intent indirectly and report the total;
	// intent events are the object itself.
	switch env.Type {
	case model.EventTypeCheckoutCompleted:
		ev.IntentRef = env.Data.Object.PaymentIntent
		ev.Amount = env.Data.Object.AmountTotal
	default:
		ev.IntentRef = env.Data.Object.ID
		ev.Amount = env.Data.Object.Amount
	}
	return ev, nil
}
