package repository

import (
	"context"

	"gym-subscription-platform/internal/domain/model"
)

type WebhookEventRepository interface {
	// MarkProcessed records the gateway event id. Returns false when the id
	// was already recorded, which makes redelivered events no-ops.
	MarkProcessed(ctx context.Context, tx Tx, ev *model.WebhookEvent) (bool, error)
}
