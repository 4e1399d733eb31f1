package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bochiedev/tulia-booking/services/booking-service/internal/model"
)

const (
	TopicAppointmentCreated   = "booking.appointment.created.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Events records appointment lifecycle events into the outbox. The engine
// calls it inside the booking transaction, so an event row exists iff the
// booking committed.
type Events struct {
	repo *Repository
}

func NewEvents(repo *Repository) *Events {
	return &Events{repo: repo}
}

type appointmentPayload struct {
	AppointmentID string     `json:"appointment_id"`
	TenantID      string     `json:"tenant_id"`
	CustomerID    string     `json:"customer_id"`
	ServiceID     string     `json:"service_id"`
	VariantID     *string    `json:"variant_id,omitempty"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	Status        string     `json:"status"`
	CanceledAt    *time.Time `json:"canceled_at,omitempty"`
}

func (e *Events) AppointmentCreated(ctx context.Context, appt model.Appointment) error {
	return e.record(ctx, TopicAppointmentCreated, appt)
}

func (e *Events) AppointmentCanceled(ctx context.Context, appt model.Appointment) error {
	return e.record(ctx, TopicAppointmentCancelled, appt)
}

func (e *Events) record(ctx context.Context, eventType string, appt model.Appointment) error {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID: appt.ID,
		TenantID:      appt.TenantID,
		CustomerID:    appt.CustomerID,
		ServiceID:     appt.ServiceID,
		VariantID:     appt.VariantID,
		StartAt:       appt.StartAt,
		EndAt:         appt.EndAt,
		Status:        string(appt.Status),
		CanceledAt:    appt.CanceledAt,
	})
	if err != nil {
		return err
	}
	return e.repo.Insert(ctx, Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
