package leads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Lead struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ConversationID  string
	FirstName       string
	LastName        string
	Phone           *string
	PipelineStageID *uuid.UUID
	BotEnabled      bool
	LastInboundAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, tenant_id, conversation_id, first_name, last_name, phone,
	pipeline_stage_id, bot_enabled, last_inbound_at, created_at, updated_at`

func (r *Repository) GetByID(ctx context.Context, id, tenantID uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanLead(row)
}

func (r *Repository) GetByConversation(ctx context.Context, tenantID uuid.UUID, conversationID string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE tenant_id = $1 AND conversation_id = $2
	`, tenantID, conversationID)
	return scanLead(row)
}

// UpsertByConversation creates the lead on first contact and returns it.
// An existing lead is returned unchanged.
func (r *Repository) UpsertByConversation(ctx context.Context, tenantID uuid.UUID, conversationID string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (tenant_id, conversation_id)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, conversation_id) DO UPDATE SET updated_at = now()
		RETURNING `+leadColumns+`
	`, tenantID, conversationID)
	return scanLead(row)
}

// RecordInbound stamps the lead's last inbound time.
func (r *Repository) RecordInbound(ctx context.Context, id, tenantID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET last_inbound_at = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, at)
	return err
}

// SetStage moves the lead to a new pipeline stage and returns the previous one.
func (r *Repository) SetStage(ctx context.Context, id, tenantID, stageID uuid.UUID) (*uuid.UUID, error) {
	var oldStage *uuid.UUID
	err := r.pool.QueryRow(ctx, `
		UPDATE leads l
		SET pipeline_stage_id = $3, updated_at = now()
		FROM (SELECT pipeline_stage_id FROM leads WHERE id = $1 AND tenant_id = $2) prev
		WHERE l.id = $1 AND l.tenant_id = $2
		RETURNING prev.pipeline_stage_id
	`, id, tenantID, stageID).Scan(&oldStage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return oldStage, nil
}

// UpdateContact replaces the lead's contact fields.
func (r *Repository) UpdateContact(ctx context.Context, id, tenantID uuid.UUID, firstName, lastName string, phoneNumber *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET first_name = $3, last_name = $4, phone = $5, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`,
		id, tenantID, firstName, lastName, phoneNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FillName sets the lead's name only when it is still blank, so a
// profile lookup never clobbers agent-entered data.
func (r *Repository) FillName(ctx context.Context, id, tenantID uuid.UUID, firstName, lastName string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET first_name = $3, last_name = $4, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND first_name = '' AND last_name = ''`,
		id, tenantID, firstName, lastName)
	return err
}

// SetBotEnabled flips the lead's automated-reply flag.
func (r *Repository) SetBotEnabled(ctx context.Context, id, tenantID uuid.UUID, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET bot_enabled = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAppointment records a booked appointment for a lead.
func (r *Repository) CreateAppointment(ctx context.Context, leadID, tenantID uuid.UUID, startTime time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (tenant_id, lead_id, start_time)
		VALUES ($1, $2, $3)
		RETURNING id
	`, tenantID, leadID, startTime).Scan(&id)
	return id, err
}

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.ConversationID, &lead.FirstName, &lead.LastName, &lead.Phone,
		&lead.PipelineStageID, &lead.BotEnabled, &lead.LastInboundAt, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}
