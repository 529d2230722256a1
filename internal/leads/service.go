package leads

import (
	"context"
	"time"

	"chatflow_backend/internal/events"
	"chatflow_backend/platform/apperr"
	"chatflow_backend/platform/logger"
	"chatflow_backend/platform/phone"

	"github.com/google/uuid"
)

// Service exposes the lead-state operations the orchestration engine
// reacts to. The full CRM surface lives elsewhere; only stage changes,
// appointment bookings and inbound recording matter here.
type Service struct {
	repo *Repository
	bus  events.Bus
	log  *logger.Logger
}

func NewService(repo *Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

func (s *Service) Repository() *Repository {
	return s.repo
}

// ChangeStage moves a lead to a new pipeline stage and publishes the
// stage-change event that drives workflow dispatch. The stage update
// and the dispatch are not atomic: a dispatch failure leaves the stage
// updated (accepted eventual consistency).
func (s *Service) ChangeStage(ctx context.Context, leadID, tenantID, stageID uuid.UUID) error {
	oldStage, err := s.repo.SetStage(ctx, leadID, tenantID, stageID)
	if err == ErrNotFound {
		return apperr.NotFound("lead not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update stage", err)
	}

	evt := events.PipelineStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		TenantID:  tenantID,
		NewStage:  stageID,
	}
	if oldStage != nil {
		evt.OldStage = *oldStage
	}
	if err := s.bus.PublishSync(ctx, evt); err != nil {
		s.log.Error("stage change dispatch failed", "leadId", leadID, "error", err)
	}
	return nil
}

// UpdateContact stores agent-edited contact details. The phone number
// is normalized to E.164 when it parses; unparseable input is kept
// verbatim rather than rejected.
func (s *Service) UpdateContact(ctx context.Context, leadID, tenantID uuid.UUID, firstName, lastName string, phoneNumber *string) error {
	if phoneNumber != nil {
		normalized := phone.NormalizeE164(*phoneNumber)
		phoneNumber = &normalized
	}

	err := s.repo.UpdateContact(ctx, leadID, tenantID, firstName, lastName, phoneNumber)
	if err == ErrNotFound {
		return apperr.NotFound("lead not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update contact", err)
	}
	return nil
}

// BookAppointment records an appointment and publishes the booking event.
func (s *Service) BookAppointment(ctx context.Context, leadID, tenantID uuid.UUID, startTime time.Time) (uuid.UUID, error) {
	if _, err := s.repo.GetByID(ctx, leadID, tenantID); err != nil {
		return uuid.Nil, apperr.NotFound("lead not found")
	}

	appointmentID, err := s.repo.CreateAppointment(ctx, leadID, tenantID, startTime)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindInternal, "failed to create appointment", err)
	}

	if err := s.bus.PublishSync(ctx, events.AppointmentBooked{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        leadID,
		TenantID:      tenantID,
		AppointmentID: appointmentID,
		StartTime:     startTime,
	}); err != nil {
		s.log.Error("appointment dispatch failed", "leadId", leadID, "error", err)
	}
	return appointmentID, nil
}
