package events

import (
	"time"

	"chatflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Inbound Messaging Events
// =============================================================================

// InboundMessageReceived is published once per deduplicated inbound
// platform message, after the delivery claim succeeded.
type InboundMessageReceived struct {
	BaseEvent
	EventID        string    `json:"eventId"`
	ConversationID string    `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	TenantID       uuid.UUID `json:"tenantId"`
	Text           string    `json:"text,omitempty"`
	IsEcho         bool      `json:"isEcho"`
}

func (e InboundMessageReceived) EventName() string { return "messaging.inbound.received" }

// InboundPostbackReceived is published for a deduplicated postback
// (button tap) event.
type InboundPostbackReceived struct {
	BaseEvent
	EventID        string    `json:"eventId"`
	ConversationID string    `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	TenantID       uuid.UUID `json:"tenantId"`
	Payload        string    `json:"payload"`
}

func (e InboundPostbackReceived) EventName() string { return "messaging.inbound.postback" }

// =============================================================================
// Lead Pipeline Events
// =============================================================================

// PipelineStageChanged is published when a lead moves to a new pipeline stage.
type PipelineStageChanged struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	OldStage uuid.UUID `json:"oldStage"`
	NewStage uuid.UUID `json:"newStage"`
}

func (e PipelineStageChanged) EventName() string { return "leads.pipeline.changed" }

// AppointmentBooked is published when an appointment is booked for a lead.
type AppointmentBooked struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	TenantID      uuid.UUID `json:"tenantId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	StartTime     time.Time `json:"startTime"`
}

func (e AppointmentBooked) EventName() string { return "leads.appointment.booked" }

// =============================================================================
// Takeover Events
// =============================================================================

// TakeoverStarted is published when a human agent takes over a conversation,
// either explicitly or by sending a manual reply.
type TakeoverStarted struct {
	BaseEvent
	ConversationID string    `json:"conversationId"`
	TenantID       uuid.UUID `json:"tenantId"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func (e TakeoverStarted) EventName() string { return "takeover.started" }

// =============================================================================
// Workflow Events
// =============================================================================

// WorkflowRunFinished is published when a run reaches a terminal state.
type WorkflowRunFinished struct {
	BaseEvent
	RunID      uuid.UUID `json:"runId"`
	WorkflowID uuid.UUID `json:"workflowId"`
	LeadID     uuid.UUID `json:"leadId"`
	TenantID   uuid.UUID `json:"tenantId"`
	Status     string    `json:"status"`
}

func (e WorkflowRunFinished) EventName() string { return "workflows.run.finished" }
