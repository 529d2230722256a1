package followup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FollowUp is one claimed re-engagement send, joined with the lead and
// tenant settings the sender needs.
type FollowUp struct {
	TenantID       uuid.UUID
	LeadID         uuid.UUID
	ConversationID string
	AttemptCount   int
	Template       string
	NextEligibleAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ClaimDue atomically claims due follow-ups and advances their backoff
// state in the same statement. The filters enforce every precondition
// at claim time: tenant has follow-ups enabled, the lead's bot switch
// is on, the backoff ladder isn't exhausted, and the tenant's local
// clock is inside active hours. FOR UPDATE SKIP LOCKED keeps
// concurrent pollers from double-claiming a row.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]FollowUp, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT f.tenant_id, f.lead_id
			FROM follow_up_states f
			JOIN leads l ON l.id = f.lead_id AND l.tenant_id = f.tenant_id
			JOIN tenant_settings s ON s.tenant_id = f.tenant_id
			WHERE f.next_eligible_at <= now()
			  AND s.follow_up_enabled
			  AND l.bot_enabled
			  AND f.attempt_count < COALESCE(array_length(s.follow_up_backoff, 1), 0)
			  AND EXTRACT(HOUR FROM (now() AT TIME ZONE s.timezone)) >= s.active_hours_start
			  AND EXTRACT(HOUR FROM (now() AT TIME ZONE s.timezone)) < s.active_hours_end
			ORDER BY f.next_eligible_at
			LIMIT $1
			FOR UPDATE OF f SKIP LOCKED
		)
		UPDATE follow_up_states f
		SET attempt_count = f.attempt_count + 1,
			next_eligible_at = now() + make_interval(mins =>
				s.follow_up_backoff[LEAST(f.attempt_count + 1, array_length(s.follow_up_backoff, 1))]),
			updated_at = now()
		FROM due, leads l, tenant_settings s
		WHERE f.tenant_id = due.tenant_id AND f.lead_id = due.lead_id
		  AND l.id = f.lead_id AND l.tenant_id = f.tenant_id
		  AND s.tenant_id = f.tenant_id
		RETURNING f.tenant_id, f.lead_id, l.conversation_id, f.attempt_count,
			s.follow_up_template, f.next_eligible_at`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []FollowUp
	for rows.Next() {
		var f FollowUp
		if err := rows.Scan(&f.TenantID, &f.LeadID, &f.ConversationID,
			&f.AttemptCount, &f.Template, &f.NextEligibleAt); err != nil {
			return nil, err
		}
		claimed = append(claimed, f)
	}
	return claimed, rows.Err()
}

// ResetOnInbound restarts the idle clock after a lead replies: the
// attempt counter returns to zero and the next eligibility moves out
// by the tenant's idle threshold.
func (r *Repository) ResetOnInbound(ctx context.Context, tenantID, leadID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO follow_up_states (tenant_id, lead_id, attempt_count, next_eligible_at, updated_at)
		SELECT s.tenant_id, $2, 0, now() + make_interval(mins => s.follow_up_idle_minutes), now()
		FROM tenant_settings s
		WHERE s.tenant_id = $1
		ON CONFLICT (tenant_id, lead_id) DO UPDATE
		SET attempt_count = 0,
			next_eligible_at = EXCLUDED.next_eligible_at,
			updated_at = now()`,
		tenantID, leadID)
	return err
}

// Get returns the follow-up state for one lead, mainly for tests and
// inspection.
func (r *Repository) Get(ctx context.Context, tenantID, leadID uuid.UUID) (FollowUp, bool, error) {
	var f FollowUp
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id, lead_id, attempt_count, next_eligible_at
		FROM follow_up_states
		WHERE tenant_id = $1 AND lead_id = $2`,
		tenantID, leadID).Scan(&f.TenantID, &f.LeadID, &f.AttemptCount, &f.NextEligibleAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FollowUp{}, false, nil
	}
	if err != nil {
		return FollowUp{}, false, err
	}
	return f, true, nil
}
