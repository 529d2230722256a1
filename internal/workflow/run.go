package workflow

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a workflow run.
//
//	pending → running → {waiting ⇄ running | completed | stopped | failed}
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusWaiting   RunStatus = "waiting"
	StatusCompleted RunStatus = "completed"
	StatusStopped   RunStatus = "stopped"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status can never be left again.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// Run is one execution of a Definition against one lead. Version is an
// optimistic counter incremented on every claimed transition; it is
// the sole concurrency control for run progress.
type Run struct {
	ID           uuid.UUID
	WorkflowID   uuid.UUID
	LeadID       uuid.UUID
	TenantID     uuid.UUID
	CursorNodeID string
	Status       RunStatus
	ResumeAt     *time.Time
	Version      int
	StartedAt    time.Time
	UpdatedAt    time.Time
}
