package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bochiedev/tulia-booking/services/booking-service/internal/availability"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/model"
)

// Catalog is the read-only view of the tenant-administered offering data.
// Every lookup is tenant-scoped; cross-tenant references come back as
// model.ErrNotFound.
type Catalog interface {
	GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error)
	GetVariant(ctx context.Context, tenantID, serviceID, variantID string) (model.ServiceVariant, error)
	GetCustomer(ctx context.Context, tenantID, customerID string) (model.Customer, error)
	ListWindows(ctx context.Context, tenantID, serviceID string) ([]model.AvailabilityWindow, error)
}

// AppointmentStore persists bookings. Methods called inside WithTx observe
// the open transaction; LockService must serialize concurrent bookings on
// the same (tenant, service) pair until commit or rollback.
type AppointmentStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockService(ctx context.Context, tenantID, serviceID string) error
	CountOverlapping(ctx context.Context, tenantID, serviceID string, ivl availability.Interval) (int, error)
	Insert(ctx context.Context, appt *model.Appointment) error
	GetForUpdate(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error)
	MarkCanceled(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error)
	List(ctx context.Context, tenantID string, f ListFilter) ([]model.Appointment, error)
}

// EventRecorder records lifecycle events inside the booking transaction so
// they are published iff the booking commits.
type EventRecorder interface {
	AppointmentCreated(ctx context.Context, appt model.Appointment) error
	AppointmentCanceled(ctx context.Context, appt model.Appointment) error
}

type ListFilter struct {
	ServiceID  string
	CustomerID string
	Status     model.AppointmentStatus
	From       time.Time
	To         time.Time
	Limit      int
}

type Engine struct {
	catalog    Catalog
	store      AppointmentStore
	events     EventRecorder
	logger     *slog.Logger
	txTimeout  time.Duration
	maxRetries int
}

type EngineOption func(*Engine)

// WithTxTimeout bounds how long a booking transaction may hold its locks.
func WithTxTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.txTimeout = d
		}
	}
}

// WithMaxRetries bounds internal retries on transient conflicts.
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func NewEngine(catalog Catalog, store AppointmentStore, events EventRecorder, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:    catalog,
		store:      store,
		events:     events,
		logger:     logger,
		txTimeout:  5 * time.Second,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type CreateAppointmentInput struct {
	TenantID   string
	CustomerID string
	ServiceID  string
	VariantID  string // optional
	Start      time.Time
	End        time.Time
}

// CreateAppointment books the requested interval or rejects it with a typed
// error. The capacity recount and the insert run in one transaction with the
// service row locked, so two concurrent requests for an overlapping interval
// on the same service can never both slip past a full window.
func (e *Engine) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (model.Appointment, error) {
	ivl := availability.Interval{Start: in.Start.UTC(), End: in.End.UTC()}
	if !ivl.Valid() {
		return model.Appointment{}, model.ErrInvalidInterval
	}

	svc, err := e.catalog.GetService(ctx, in.TenantID, in.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !svc.Active {
		// Inactive services are not bookable; reported as absent to avoid
		// leaking catalog state.
		return model.Appointment{}, model.ErrNotFound
	}
	if _, err := e.catalog.GetCustomer(ctx, in.TenantID, in.CustomerID); err != nil {
		return model.Appointment{}, err
	}
	var variantID *string
	if in.VariantID != "" {
		if _, err := e.catalog.GetVariant(ctx, in.TenantID, in.ServiceID, in.VariantID); err != nil {
			return model.Appointment{}, err
		}
		variantID = &in.VariantID
	}

	windows, err := e.catalog.ListWindows(ctx, in.TenantID, in.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	matched := availability.ResolveWindows(windows, ivl)
	if len(matched) == 0 {
		return model.Appointment{}, model.ErrOutsideAvailabilityWindow
	}
	capacity := availability.MaxCapacity(matched)

	var appt model.Appointment
	err = e.runSerialized(ctx, func(txCtx context.Context) error {
		if err := e.store.LockService(txCtx, in.TenantID, in.ServiceID); err != nil {
			return err
		}
		occupied, err := e.store.CountOverlapping(txCtx, in.TenantID, in.ServiceID, ivl)
		if err != nil {
			return err
		}
		if capacity-occupied <= 0 {
			return model.ErrNoCapacityAvailable
		}

		appt = model.Appointment{
			ID:         uuid.NewString(),
			TenantID:   in.TenantID,
			CustomerID: in.CustomerID,
			ServiceID:  in.ServiceID,
			VariantID:  variantID,
			StartAt:    ivl.Start,
			EndAt:      ivl.End,
			Status:     model.AppointmentStatusPending,
		}
		if err := e.store.Insert(txCtx, &appt); err != nil {
			return err
		}
		return e.events.AppointmentCreated(txCtx, appt)
	})
	if err != nil {
		return model.Appointment{}, err
	}

	e.logger.Info("appointment created",
		"tenant_id", appt.TenantID,
		"service_id", appt.ServiceID,
		"appointment_id", appt.ID,
		"start_at", appt.StartAt,
	)
	return appt, nil
}

// CancelAppointment marks the appointment canceled, freeing its capacity for
// subsequent bookings. Canceling an already-canceled appointment is a no-op
// that returns the current row.
func (e *Engine) CancelAppointment(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	var appt model.Appointment
	err := e.runSerialized(ctx, func(txCtx context.Context) error {
		current, err := e.store.GetForUpdate(txCtx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		if current.Status == model.AppointmentStatusCanceled {
			appt = current
			return nil
		}

		updated, err := e.store.MarkCanceled(txCtx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		appt = updated
		return e.events.AppointmentCanceled(txCtx, updated)
	})
	if err != nil {
		return model.Appointment{}, err
	}

	e.logger.Info("appointment canceled",
		"tenant_id", appt.TenantID,
		"appointment_id", appt.ID,
	)
	return appt, nil
}

// CheckCapacity previews how many more overlapping appointments the interval
// can take without booking anything. No covering window reads as zero, the
// same fail-closed default CreateAppointment applies.
func (e *Engine) CheckCapacity(ctx context.Context, tenantID, serviceID string, start, end time.Time) (int, error) {
	ivl := availability.Interval{Start: start.UTC(), End: end.UTC()}
	if !ivl.Valid() {
		return 0, model.ErrInvalidInterval
	}
	svc, err := e.catalog.GetService(ctx, tenantID, serviceID)
	if err != nil {
		return 0, err
	}
	if !svc.Active {
		return 0, model.ErrNotFound
	}

	windows, err := e.catalog.ListWindows(ctx, tenantID, serviceID)
	if err != nil {
		return 0, err
	}
	matched := availability.ResolveWindows(windows, ivl)
	if len(matched) == 0 {
		return 0, nil
	}

	occupied, err := e.store.CountOverlapping(ctx, tenantID, serviceID, ivl)
	if err != nil {
		return 0, err
	}
	available := availability.MaxCapacity(matched) - occupied
	if available < 0 {
		available = 0
	}
	return available, nil
}

func (e *Engine) ListAppointments(ctx context.Context, tenantID string, f ListFilter) ([]model.Appointment, error) {
	return e.store.List(ctx, tenantID, f)
}

// runSerialized executes fn inside a bounded transaction, retrying transient
// serialization aborts. Exhausted retries report the slot as full: a false
// "no capacity" is preferable to risking a double booking.
func (e *Engine) runSerialized(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		txCtx, cancel := context.WithTimeout(ctx, e.txTimeout)
		err := e.store.WithTx(txCtx, fn)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrTransientConflict) {
			return err
		}
		lastErr = err
		e.logger.Warn("transient conflict, retrying", "attempt", attempt, "err", err)
	}
	e.logger.Warn("retries exhausted, reporting no capacity", "err", lastErr)
	return model.ErrNoCapacityAvailable
}
