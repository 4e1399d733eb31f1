package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bochiedev/tulia-booking/libs/db"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/availability"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/booking"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/model"
)

const appointmentColumns = `id::text, tenant_id::text, customer_id::text, service_id::text,
		variant_id::text, start_at, end_at, status, canceled_at, created_at`

// AppointmentRepository persists appointments. Booking writes run inside
// WithTx with the service row locked, which serializes concurrent bookings
// for the same (tenant, service) pair.
type AppointmentRepository struct {
	conn db.Conn
}

func NewAppointmentRepository(conn db.Conn) *AppointmentRepository {
	return &AppointmentRepository{conn: conn}
}

func (r *AppointmentRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return normalizeTransient(db.WithTx(ctx, r.conn, fn))
}

func (r *AppointmentRepository) LockService(ctx context.Context, tenantID, serviceID string) error {
	var id string
	err := db.Runner(ctx, r.conn).QueryRow(ctx, `
		SELECT id::text
		FROM services
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, serviceID, tenantID).Scan(&id)
	return normalizeNotFound(err)
}

func (r *AppointmentRepository) CountOverlapping(ctx context.Context, tenantID, serviceID string, ivl availability.Interval) (int, error) {
	var n int
	err := db.Runner(ctx, r.conn).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE tenant_id = $1
			AND service_id = $2
			AND status IN ('pending', 'confirmed')
			AND start_at < $4
			AND end_at > $3
	`, tenantID, serviceID, ivl.Start, ivl.End).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *AppointmentRepository) Insert(ctx context.Context, appt *model.Appointment) error {
	return db.Runner(ctx, r.conn).QueryRow(ctx, `
		INSERT INTO appointments
			(id, tenant_id, customer_id, service_id, variant_id, start_at, end_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, appt.ID, appt.TenantID, appt.CustomerID, appt.ServiceID, appt.VariantID,
		appt.StartAt, appt.EndAt, appt.Status).Scan(&appt.CreatedAt)
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	var appt model.Appointment
	err := db.Runner(ctx, r.conn).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, appointmentID, tenantID).Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.CustomerID,
		&appt.ServiceID,
		&appt.VariantID,
		&appt.StartAt,
		&appt.EndAt,
		&appt.Status,
		&appt.CanceledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, normalizeNotFound(err)
	}
	return appt, nil
}

func (r *AppointmentRepository) MarkCanceled(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	var appt model.Appointment
	err := db.Runner(ctx, r.conn).QueryRow(ctx, `
		UPDATE appointments
		SET status = 'canceled',
			canceled_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+appointmentColumns+`
	`, appointmentID, tenantID).Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.CustomerID,
		&appt.ServiceID,
		&appt.VariantID,
		&appt.StartAt,
		&appt.EndAt,
		&appt.Status,
		&appt.CanceledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, normalizeNotFound(err)
	}
	return appt, nil
}

func (r *AppointmentRepository) List(ctx context.Context, tenantID string, f booking.ListFilter) ([]model.Appointment, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}

	if f.ServiceID != "" {
		args = append(args, f.ServiceID)
		where = append(where, fmt.Sprintf("service_id = $%d", len(args)))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("end_at > $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("start_at < $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE %s
		ORDER BY start_at DESC
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args))

	rows, err := db.Runner(ctx, r.conn).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		if err := rows.Scan(
			&appt.ID,
			&appt.TenantID,
			&appt.CustomerID,
			&appt.ServiceID,
			&appt.VariantID,
			&appt.StartAt,
			&appt.EndAt,
			&appt.Status,
			&appt.CanceledAt,
			&appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// normalizeTransient maps serialization and deadlock aborts to the retryable
// sentinel so the engine can re-run the transaction.
func normalizeTransient(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", model.ErrTransientConflict, pgErr.Code)
	}
	return err
}
