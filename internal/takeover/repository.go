package takeover

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session is a per-conversation human-takeover lease. A conversation
// with no row, or a row whose expires_at has passed, is not taken over.
// Rows are never deleted; expiry is evaluated lazily at read time.
type Session struct {
	TenantID       uuid.UUID
	ConversationID string
	ExpiresAt      time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert extends the takeover lease for a conversation. The GREATEST
// guard keeps expires_at forward-only: a refresh can never shorten an
// already-granted window.
func (r *Repository) Upsert(ctx context.Context, tenantID uuid.UUID, conversationID string, expiresAt time.Time) (Session, error) {
	var session Session
	err := r.pool.QueryRow(ctx, `
		INSERT INTO takeover_sessions (tenant_id, conversation_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, conversation_id)
		DO UPDATE SET expires_at = GREATEST(takeover_sessions.expires_at, EXCLUDED.expires_at)
		RETURNING tenant_id, conversation_id, expires_at
	`, tenantID, conversationID, expiresAt).Scan(&session.TenantID, &session.ConversationID, &session.ExpiresAt)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// Get returns the session row if one exists, expired or not.
func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID, conversationID string) (Session, bool, error) {
	var session Session
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id, conversation_id, expires_at
		FROM takeover_sessions
		WHERE tenant_id = $1 AND conversation_id = $2
	`, tenantID, conversationID).Scan(&session.TenantID, &session.ConversationID, &session.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return session, true, nil
}
