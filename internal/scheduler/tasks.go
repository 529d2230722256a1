package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskWorkflowRunDue = "workflows.run.due"

const TaskFollowUpSweep = "followups.sweep"

const TaskDeliveryPrune = "deliveries.prune"

// WorkflowRunDuePayload identifies the run whose resume time arrived.
// The payload is a hint only; the due-run claim in the database decides
// what actually gets advanced.
type WorkflowRunDuePayload struct {
	RunID    string `json:"runId"`
	TenantID string `json:"tenantId"`
}

func NewWorkflowRunDueTask(payload WorkflowRunDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWorkflowRunDue, data), nil
}

func ParseWorkflowRunDuePayload(task *asynq.Task) (WorkflowRunDuePayload, error) {
	var payload WorkflowRunDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WorkflowRunDuePayload{}, err
	}
	return payload, nil
}
