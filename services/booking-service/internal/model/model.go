package model

import "time"

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCanceled  AppointmentStatus = "canceled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// Active reports whether the appointment consumes capacity.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusConfirmed
}

// Service is a bookable offering owned by a tenant. The engine only reads it
// to validate ownership; administration lives elsewhere.
type Service struct {
	ID        string
	TenantID  string
	Title     string
	BasePrice string
	Currency  string
	Active    bool
	CreatedAt time.Time
}

// ServiceVariant is an optional duration/price variant of a Service.
type ServiceVariant struct {
	ID              string
	ServiceID       string
	DurationMinutes int
	Price           string
}

type Customer struct {
	ID        string
	TenantID  string
	Name      string
	Phone     string
	CreatedAt time.Time
}

// AvailabilityWindow declares bookable capacity for a service: either a
// recurring weekly pattern (Weekday set, 0=Sunday..6=Saturday) or a one-off
// calendar date (Date set). Start/end are local wall-clock minutes since
// midnight in Timezone.
type AvailabilityWindow struct {
	ID          string
	TenantID    string
	ServiceID   string
	Weekday     *int
	Date        *time.Time
	StartMinute int
	EndMinute   int
	Capacity    int
	Timezone    string
}

type Appointment struct {
	ID         string
	TenantID   string
	CustomerID string
	ServiceID  string
	VariantID  *string
	StartAt    time.Time
	EndAt      time.Time
	Status     AppointmentStatus
	CanceledAt *time.Time
	CreatedAt  time.Time
}
