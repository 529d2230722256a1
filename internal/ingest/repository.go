package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ClaimDelivery wins the claim iff the (tenant, event) pair was never
// recorded. ON CONFLICT DO NOTHING makes the race between concurrent
// replicas resolve to exactly one winner.
func (r *Repository) ClaimDelivery(ctx context.Context, tenantID uuid.UUID, eventID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO event_deliveries (tenant_id, event_id, received_at)
		VALUES ($1, $2, now())
		ON CONFLICT (tenant_id, event_id) DO NOTHING`,
		tenantID, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteOlderThan prunes delivery records past the retention window.
// The platform stops redelivering long before this horizon, so pruned
// ids cannot come back.
func (r *Repository) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM event_deliveries
		WHERE received_at < now() - make_interval(secs => $1)`,
		retention.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
