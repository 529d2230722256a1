package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("workflow not found")
	// ErrClaimConflict means another worker already progressed the run.
	// It is benign and must be skipped, never retried.
	ErrClaimConflict = errors.New("run claim conflict")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ---- Definitions ----

const definitionColumns = `id, tenant_id, name, is_published, allow_concurrent_runs,
	trigger_stage_id, trigger_on_appointment, nodes, edges, created_at, updated_at`

func (r *Repository) CreateDefinition(ctx context.Context, def *Definition) error {
	nodes, edges, err := marshalGraph(def)
	if err != nil {
		return err
	}

	return r.pool.QueryRow(ctx, `
		INSERT INTO workflow_definitions (tenant_id, name, allow_concurrent_runs, nodes, edges)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_published, created_at, updated_at
	`, def.TenantID, def.Name, def.AllowConcurrentRuns, nodes, edges).
		Scan(&def.ID, &def.IsPublished, &def.CreatedAt, &def.UpdatedAt)
}

// UpdateDefinition replaces the editable fields. Editing unpublishes
// the definition; it must be re-validated via publish before the
// dispatcher considers it again.
func (r *Repository) UpdateDefinition(ctx context.Context, def *Definition) error {
	nodes, edges, err := marshalGraph(def)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_definitions
		SET name = $3, allow_concurrent_runs = $4, nodes = $5, edges = $6,
			is_published = false, trigger_stage_id = NULL, trigger_on_appointment = false,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, def.ID, def.TenantID, def.Name, def.AllowConcurrentRuns, nodes, edges)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	def.IsPublished = false
	def.TriggerStageID = nil
	def.TriggerOnAppointment = false
	return nil
}

func (r *Repository) GetDefinition(ctx context.Context, id, tenantID uuid.UUID) (Definition, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanDefinition(row)
}

func (r *Repository) ListDefinitions(ctx context.Context, tenantID uuid.UUID) ([]Definition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// SetPublished flips the publish flag. When publishing, the trigger
// fields are denormalized from the (already validated) trigger node.
func (r *Repository) SetPublished(ctx context.Context, def *Definition, published bool) error {
	var stageID *uuid.UUID
	onAppointment := false
	if published {
		trigger, ok := def.TriggerNode()
		if !ok {
			return fmt.Errorf("definition %s has no trigger node", def.ID)
		}
		stageID = trigger.TriggerStageID
		onAppointment = trigger.TriggerOnAppointment
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_definitions
		SET is_published = $3, trigger_stage_id = $4, trigger_on_appointment = $5, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, def.ID, def.TenantID, published, stageID, onAppointment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	def.IsPublished = published
	def.TriggerStageID = stageID
	def.TriggerOnAppointment = onAppointment
	return nil
}

func (r *Repository) ListPublishedByStage(ctx context.Context, tenantID, stageID uuid.UUID) ([]Definition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE tenant_id = $1 AND is_published AND trigger_stage_id = $2
	`, tenantID, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func (r *Repository) ListPublishedForAppointments(ctx context.Context, tenantID uuid.UUID) ([]Definition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE tenant_id = $1 AND is_published AND trigger_on_appointment
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// ---- Runs ----

const runColumns = `id, workflow_id, lead_id, tenant_id, cursor_node_id, status,
	resume_at, version, started_at, updated_at`

func (r *Repository) CreateRun(ctx context.Context, def Definition, leadID uuid.UUID, cursorNodeID string) (Run, error) {
	run := Run{
		WorkflowID:   def.ID,
		LeadID:       leadID,
		TenantID:     def.TenantID,
		CursorNodeID: cursorNodeID,
		Status:       StatusPending,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO workflow_runs (workflow_id, lead_id, tenant_id, cursor_node_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, version, started_at, updated_at
	`, def.ID, leadID, def.TenantID, cursorNodeID).
		Scan(&run.ID, &run.Version, &run.StartedAt, &run.UpdatedAt)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

func (r *Repository) GetRun(ctx context.Context, id, tenantID uuid.UUID) (Run, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM workflow_runs
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanRun(row)
}

// HasActiveRun reports whether a non-terminal run exists for the
// (workflow, lead) pair. Checked by the dispatcher before creating a
// new run.
func (r *Repository) HasActiveRun(ctx context.Context, workflowID, leadID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM workflow_runs
			WHERE workflow_id = $1 AND lead_id = $2
			  AND status NOT IN ('completed', 'stopped', 'failed')
		)
	`, workflowID, leadID).Scan(&exists)
	return exists, err
}

func (r *Repository) ListRunsByWorkflow(ctx context.Context, workflowID, tenantID uuid.UUID) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM workflow_runs
		WHERE workflow_id = $1 AND tenant_id = $2
		ORDER BY started_at DESC
	`, workflowID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// TransitionRun moves the run to a new cursor/status, guarded by the
// optimistic version. Zero rows affected means another worker already
// progressed the run; the caller must treat that as a lost race and
// skip, so TransitionRun returns ErrClaimConflict. On success the
// in-memory run is updated, version included.
func (r *Repository) TransitionRun(ctx context.Context, run *Run, cursorNodeID string, status RunStatus, resumeAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_runs
		SET cursor_node_id = $3, status = $4, resume_at = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
	`, run.ID, run.Version, cursorNodeID, string(status), resumeAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}

	run.CursorNodeID = cursorNodeID
	run.Status = status
	run.ResumeAt = resumeAt
	run.Version++
	return nil
}

// ClaimDueRuns atomically selects waiting runs whose resume time has
// passed and transitions them to running, bumping the version in the
// same statement. SKIP LOCKED plus the version bump guarantees that
// two overlapping poller invocations never both obtain the same run.
func (r *Repository) ClaimDueRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH due AS (
		SELECT id
		FROM workflow_runs
		WHERE status = 'waiting' AND resume_at <= now()
		ORDER BY resume_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE workflow_runs r
	SET status = 'running', version = r.version + 1, updated_at = now()
	FROM due
	WHERE r.id = due.id
	RETURNING r.id, r.workflow_id, r.lead_id, r.tenant_id, r.cursor_node_id, r.status,
		r.resume_at, r.version, r.started_at, r.updated_at`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return runs, nil
}

// ---- scanning ----

func marshalGraph(def *Definition) ([]byte, []byte, error) {
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := json.Marshal(def.Edges)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal edges: %w", err)
	}
	return nodes, edges, nil
}

func scanDefinition(row pgx.Row) (Definition, error) {
	var def Definition
	var nodes, edges []byte
	err := row.Scan(
		&def.ID, &def.TenantID, &def.Name, &def.IsPublished, &def.AllowConcurrentRuns,
		&def.TriggerStageID, &def.TriggerOnAppointment, &nodes, &edges, &def.CreatedAt, &def.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Definition{}, ErrNotFound
	}
	if err != nil {
		return Definition{}, err
	}
	if err := json.Unmarshal(nodes, &def.Nodes); err != nil {
		return Definition{}, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &def.Edges); err != nil {
		return Definition{}, fmt.Errorf("unmarshal edges: %w", err)
	}
	return def, nil
}

func scanDefinitions(rows pgx.Rows) ([]Definition, error) {
	defs := make([]Definition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	var status string
	err := row.Scan(
		&run.ID, &run.WorkflowID, &run.LeadID, &run.TenantID, &run.CursorNodeID, &status,
		&run.ResumeAt, &run.Version, &run.StartedAt, &run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	return run, nil
}
