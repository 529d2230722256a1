package workflow

import (
	"context"
	"errors"
	"fmt"

	"chatflow_backend/internal/delay"
	"chatflow_backend/platform/apperr"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Service owns workflow definition lifecycle and due-run resumption.
type Service struct {
	repo   *Repository
	runner *Runner
	poller *delay.Poller[Run]
	log    *logger.Logger
}

func NewService(repo *Repository, runner *Runner, batchSize int, log *logger.Logger) *Service {
	s := &Service{repo: repo, runner: runner, log: log}
	s.poller = delay.NewPoller[Run](claimSource{repo}, s.resumeRun, batchSize, log)
	return s
}

// claimSource adapts the repository's due-run claim to the generic
// poller contract.
type claimSource struct {
	repo *Repository
}

func (c claimSource) ClaimDue(ctx context.Context, limit int) ([]Run, error) {
	return c.repo.ClaimDueRuns(ctx, limit)
}

// CreateDraft stores a new unpublished definition. The graph is not
// validated yet; drafts may be arbitrarily incomplete.
func (s *Service) CreateDraft(ctx context.Context, def *Definition) error {
	if def.Name == "" {
		return apperr.Validation("workflow name is required")
	}
	if err := s.repo.CreateDefinition(ctx, def); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to create workflow", err).WithOp("workflow.CreateDraft")
	}
	return nil
}

// UpdateDraft replaces a definition's graph and unpublishes it. Runs
// already in flight keep executing against the graph snapshot they
// loaded; only new triggers see the edit.
func (s *Service) UpdateDraft(ctx context.Context, def *Definition) error {
	if def.Name == "" {
		return apperr.Validation("workflow name is required")
	}
	err := s.repo.UpdateDefinition(ctx, def)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("workflow not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update workflow", err).WithOp("workflow.UpdateDraft")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id, tenantID uuid.UUID) (Definition, error) {
	def, err := s.repo.GetDefinition(ctx, id, tenantID)
	if errors.Is(err, ErrNotFound) {
		return Definition{}, apperr.NotFound("workflow not found")
	}
	if err != nil {
		return Definition{}, apperr.Wrap(apperr.KindInternal, "failed to load workflow", err).WithOp("workflow.Get")
	}
	return def, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Definition, error) {
	defs, err := s.repo.ListDefinitions(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list workflows", err).WithOp("workflow.List")
	}
	return defs, nil
}

// Publish validates the graph and makes the definition live. This is
// the only gate between a draft and the trigger dispatcher.
func (s *Service) Publish(ctx context.Context, id, tenantID uuid.UUID) (Definition, error) {
	def, err := s.Get(ctx, id, tenantID)
	if err != nil {
		return Definition{}, err
	}
	if err := def.Validate(); err != nil {
		return Definition{}, apperr.Wrap(apperr.KindValidation, "workflow graph is invalid", err)
	}
	if err := s.repo.SetPublished(ctx, &def, true); err != nil {
		return Definition{}, apperr.Wrap(apperr.KindInternal, "failed to publish workflow", err).WithOp("workflow.Publish")
	}
	return def, nil
}

// Unpublish takes a definition out of the dispatcher's view. In-flight
// runs are untouched and finish on their own.
func (s *Service) Unpublish(ctx context.Context, id, tenantID uuid.UUID) (Definition, error) {
	def, err := s.Get(ctx, id, tenantID)
	if err != nil {
		return Definition{}, err
	}
	if err := s.repo.SetPublished(ctx, &def, false); err != nil {
		return Definition{}, apperr.Wrap(apperr.KindInternal, "failed to unpublish workflow", err).WithOp("workflow.Unpublish")
	}
	return def, nil
}

// ListRuns returns the run history of one workflow for inspection.
func (s *Service) ListRuns(ctx context.Context, workflowID, tenantID uuid.UUID) ([]Run, error) {
	if _, err := s.Get(ctx, workflowID, tenantID); err != nil {
		return nil, err
	}
	runs, err := s.repo.ListRunsByWorkflow(ctx, workflowID, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list runs", err).WithOp("workflow.ListRuns")
	}
	return runs, nil
}

// ResumeDue claims one batch of runs whose resume time has passed and
// advances each. Safe to invoke concurrently from multiple pollers.
func (s *Service) ResumeDue(ctx context.Context) (delay.Result, error) {
	return s.poller.RunOnce(ctx)
}

func (s *Service) resumeRun(ctx context.Context, run Run) error {
	if err := s.runner.Advance(ctx, &run); err != nil {
		return fmt.Errorf("resume run %s: %w", run.ID, err)
	}
	return nil
}
