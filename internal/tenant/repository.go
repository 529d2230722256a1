package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("tenant settings not found")

// Settings holds the per-tenant knobs for the orchestration engine.
type Settings struct {
	TenantID            uuid.UUID
	TakeoverMinutes     int
	FollowUpEnabled     bool
	FollowUpIdleMinutes int
	FollowUpBackoff     []int32 // minutes per attempt, progressive
	ActiveHoursStart    int
	ActiveHoursEnd      int
	Timezone            string
	FollowUpTemplate    string
	ChannelAccessToken  string
	ChannelPageID       string
	WebhookVerifyToken  string
	UpdatedAt           time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const settingsColumns = `tenant_id, takeover_minutes, follow_up_enabled, follow_up_idle_minutes,
	follow_up_backoff, active_hours_start, active_hours_end, timezone, follow_up_template,
	channel_access_token, channel_page_id, webhook_verify_token, updated_at`

func (r *Repository) GetByTenant(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+settingsColumns+`
		FROM tenant_settings
		WHERE tenant_id = $1
	`, tenantID)
	return scanSettings(row)
}

// GetByPageID resolves a tenant from the channel page (recipient) id
// carried on inbound webhook events.
func (r *Repository) GetByPageID(ctx context.Context, pageID string) (Settings, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+settingsColumns+`
		FROM tenant_settings
		WHERE channel_page_id = $1
	`, pageID)
	return scanSettings(row)
}

// VerifyTokenExists reports whether any tenant configured the given
// webhook verify token. Blank tokens never match.
func (r *Repository) VerifyTokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tenant_settings
			WHERE webhook_verify_token = $1 AND webhook_verify_token <> ''
		)
	`, token).Scan(&exists)
	return exists, err
}

func scanSettings(row pgx.Row) (Settings, error) {
	var s Settings
	err := row.Scan(
		&s.TenantID, &s.TakeoverMinutes, &s.FollowUpEnabled, &s.FollowUpIdleMinutes,
		&s.FollowUpBackoff, &s.ActiveHoursStart, &s.ActiveHoursEnd, &s.Timezone, &s.FollowUpTemplate,
		&s.ChannelAccessToken, &s.ChannelPageID, &s.WebhookVerifyToken, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}
