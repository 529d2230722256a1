package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatflow_backend/internal/events"
	"chatflow_backend/internal/leads"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

// maxStepsPerAdvance bounds how many non-suspending nodes one Advance
// invocation drains, so a malformed graph can't spin forever.
const maxStepsPerAdvance = 50

// takeoverRecheck is how long a run yields when a Message node finds a
// human holding the conversation.
const takeoverRecheck = time.Minute

// DefinitionStore loads workflow definitions.
type DefinitionStore interface {
	GetDefinition(ctx context.Context, id, tenantID uuid.UUID) (Definition, error)
}

// RunStore persists run transitions with optimistic concurrency.
type RunStore interface {
	TransitionRun(ctx context.Context, run *Run, cursorNodeID string, status RunStatus, resumeAt *time.Time) error
}

// LeadStore is the slice of lead state the runner needs.
type LeadStore interface {
	GetByID(ctx context.Context, id, tenantID uuid.UUID) (leads.Lead, error)
	SetBotEnabled(ctx context.Context, id, tenantID uuid.UUID, enabled bool) error
}

// MessageSender delivers one workflow message to a lead's conversation.
type MessageSender interface {
	SendWorkflowMessage(ctx context.Context, tenantID uuid.UUID, lead leads.Lead, text string) error
}

// TakeoverChecker reports whether a human currently holds a conversation.
type TakeoverChecker interface {
	IsActive(ctx context.Context, tenantID uuid.UUID, conversationID string) (bool, error)
}

// ResumeHinter enqueues a best-effort wake-up for a waiting run. The
// DB claim stays authoritative; a lost or duplicated hint is harmless.
type ResumeHinter interface {
	ScheduleRunResume(ctx context.Context, runID, tenantID uuid.UUID, runAt time.Time) error
}

// Runner is the resumable workflow executor. Advance is its single
// state-transition function, called synchronously after dispatch or
// after a scheduler claim.
type Runner struct {
	defs     DefinitionStore
	runs     RunStore
	leads    LeadStore
	sender   MessageSender
	takeover TakeoverChecker
	hints    ResumeHinter // optional
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func NewRunner(defs DefinitionStore, runs RunStore, leadStore LeadStore, sender MessageSender, takeover TakeoverChecker, bus events.Bus, log *logger.Logger) *Runner {
	return &Runner{
		defs:     defs,
		runs:     runs,
		leads:    leadStore,
		sender:   sender,
		takeover: takeover,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// SetResumeHinter wires the optional scheduler wake-up hint.
func (r *Runner) SetResumeHinter(hints ResumeHinter) {
	r.hints = hints
}

// SetClock overrides the time source. Test hook.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Advance executes the run from its cursor until it suspends or
// terminates. The caller owns the claim: a fresh run is in pending,
// a resumed run has already been transitioned waiting→running by the
// claim. A version conflict anywhere means another worker progressed
// the run; Advance stops silently.
func (r *Runner) Advance(ctx context.Context, run *Run) error {
	err := r.advance(ctx, run)
	if errors.Is(err, errStopAdvance) {
		return nil
	}
	return err
}

func (r *Runner) advance(ctx context.Context, run *Run) error {
	if run.Status.Terminal() {
		return nil
	}

	// Failed is reserved for permanent configuration problems. A run
	// whose definition or lead is gone can never make progress, but a
	// transient load error just propagates so a later tick retries.
	def, err := r.defs.GetDefinition(ctx, run.WorkflowID, run.TenantID)
	if errors.Is(err, ErrNotFound) {
		return r.fail(ctx, run, fmt.Errorf("definition %s is gone", run.WorkflowID))
	}
	if err != nil {
		return fmt.Errorf("load definition: %w", err)
	}
	lead, err := r.leads.GetByID(ctx, run.LeadID, run.TenantID)
	if errors.Is(err, leads.ErrNotFound) {
		return r.fail(ctx, run, fmt.Errorf("lead %s is gone", run.LeadID))
	}
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}

	if run.Status == StatusPending {
		if err := r.transition(ctx, run, run.CursorNodeID, StatusRunning, nil); err != nil {
			return err
		}
	}

	for step := 0; step < maxStepsPerAdvance; step++ {
		node, ok := def.NodeByID(run.CursorNodeID)
		if !ok {
			return r.fail(ctx, run, fmt.Errorf("cursor points at unknown node %q", run.CursorNodeID))
		}

		switch node.Type {
		case NodeTrigger:
			next, ok := def.NextAfter(node.ID)
			if !ok {
				return r.finish(ctx, run, StatusCompleted)
			}
			if err := r.transition(ctx, run, next, StatusRunning, nil); err != nil {
				return err
			}

		case NodeMessage:
			held, err := r.takeover.IsActive(ctx, run.TenantID, lead.ConversationID)
			if err != nil {
				return fmt.Errorf("takeover check: %w", err)
			}
			if held {
				// A human owns the conversation; yield and retry later.
				resumeAt := r.now().Add(takeoverRecheck)
				return r.suspend(ctx, run, node.ID, resumeAt)
			}

			text := renderTemplate(node.Text, lead)
			if err := r.sender.SendWorkflowMessage(ctx, run.TenantID, lead, text); err != nil {
				// Left in running with no resume time: transient send
				// failures are not retried by this design.
				return fmt.Errorf("send message node %q: %w", node.ID, err)
			}

			next, ok := def.NextAfter(node.ID)
			if !ok {
				return r.finish(ctx, run, StatusCompleted)
			}
			if err := r.transition(ctx, run, next, StatusRunning, nil); err != nil {
				return err
			}

		case NodeWait:
			next, ok := def.NextAfter(node.ID)
			if !ok {
				// Nothing after the wait; sleeping would be pointless.
				return r.finish(ctx, run, StatusCompleted)
			}
			resumeAt := r.now().Add(time.Duration(node.DurationMinutes) * time.Minute)
			return r.suspend(ctx, run, next, resumeAt)

		case NodeCondition:
			label, ok := node.EvaluateCondition(EvalContext{Lead: &lead, RunStartedAt: run.StartedAt})
			if !ok {
				label = DefaultEdgeLabel
			}
			target, found := def.BranchTarget(node.ID, label)
			if !found {
				target, found = def.BranchTarget(node.ID, DefaultEdgeLabel)
			}
			if !found {
				return r.fail(ctx, run, fmt.Errorf("condition node %q has no edge for %q", node.ID, label))
			}
			if err := r.transition(ctx, run, target, StatusRunning, nil); err != nil {
				return err
			}

		case NodeStopBot:
			if err := r.leads.SetBotEnabled(ctx, run.LeadID, run.TenantID, false); err != nil {
				return fmt.Errorf("disable bot: %w", err)
			}
			return r.finish(ctx, run, StatusStopped)

		default:
			return r.fail(ctx, run, fmt.Errorf("node %q has unknown type %q", node.ID, node.Type))
		}
	}

	return r.fail(ctx, run, fmt.Errorf("step budget exceeded at node %q", run.CursorNodeID))
}

// transition persists one cursor/status move, swallowing lost races.
func (r *Runner) transition(ctx context.Context, run *Run, cursor string, status RunStatus, resumeAt *time.Time) error {
	err := r.runs.TransitionRun(ctx, run, cursor, status, resumeAt)
	if errors.Is(err, ErrClaimConflict) {
		r.log.Debug("run transition lost race", "runId", run.ID)
		return errStopAdvance
	}
	return err
}

var errStopAdvance = errors.New("advance superseded")

// suspend parks the run until resumeAt. This is the only true
// suspension point; it never blocks the calling goroutine.
func (r *Runner) suspend(ctx context.Context, run *Run, cursor string, resumeAt time.Time) error {
	if err := r.transition(ctx, run, cursor, StatusWaiting, &resumeAt); err != nil {
		if errors.Is(err, errStopAdvance) {
			return nil
		}
		return err
	}
	if r.hints != nil {
		if err := r.hints.ScheduleRunResume(ctx, run.ID, run.TenantID, resumeAt); err != nil {
			r.log.Warn("resume hint failed", "runId", run.ID, "error", err)
		}
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, run *Run, status RunStatus) error {
	if err := r.transition(ctx, run, run.CursorNodeID, status, nil); err != nil {
		if errors.Is(err, errStopAdvance) {
			return nil
		}
		return err
	}
	r.publishFinished(ctx, run)
	return nil
}

// fail marks the run permanently failed. The underlying cause is a
// config-level problem, so the returned error reports it to the caller
// while the run itself is terminal and will never be retried.
func (r *Runner) fail(ctx context.Context, run *Run, cause error) error {
	if err := r.transition(ctx, run, run.CursorNodeID, StatusFailed, nil); err != nil {
		if errors.Is(err, errStopAdvance) {
			return nil
		}
		return errors.Join(cause, err)
	}
	r.publishFinished(ctx, run)
	return fmt.Errorf("run %s failed: %w", run.ID, cause)
}

func (r *Runner) publishFinished(ctx context.Context, run *Run) {
	r.bus.Publish(ctx, events.WorkflowRunFinished{
		BaseEvent:  events.NewBaseEvent(),
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		LeadID:     run.LeadID,
		TenantID:   run.TenantID,
		Status:     string(run.Status),
	})
}

// renderTemplate substitutes the lead placeholders supported by
// message nodes: {{firstName}} and {{lastName}}.
func renderTemplate(text string, lead leads.Lead) string {
	replacer := strings.NewReplacer(
		"{{firstName}}", lead.FirstName,
		"{{lastName}}", lead.LastName,
	)
	return replacer.Replace(text)
}
