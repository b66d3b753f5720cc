package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct{ pool *pgxpool.Pool }

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

func (r *webhookEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) (bool, error) {
	const q = `
INSERT INTO webhook_events (id, type, received_at)
VALUES ($1,$2,$3)
ON CONFLICT (id) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q, ev.ID, ev.Type, ev.ReceivedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() == 1, nil
}
