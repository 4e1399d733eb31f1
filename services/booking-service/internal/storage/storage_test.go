package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/bochiedev/tulia-booking/services/booking-service/internal/availability"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/booking"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/model"
)

func TestCatalogRepository_GetService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	createdAt := time.Now().UTC()
	mock.ExpectQuery("FROM services").
		WithArgs("s1", "t1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "title", "base_price", "currency", "active", "created_at"}).
			AddRow("s1", "t1", "Haircut", "25.00", "USD", true, createdAt))

	repo := NewCatalogRepository(mock)
	svc, err := repo.GetService(context.Background(), "t1", "s1")
	require.NoError(t, err)
	require.Equal(t, "Haircut", svc.Title)
	require.True(t, svc.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_GetService_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM services").
		WithArgs("missing", "t1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "title", "base_price", "currency", "active", "created_at"}))

	repo := NewCatalogRepository(mock)
	_, err = repo.GetService(context.Background(), "t1", "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_ListWindows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	weekday := 1
	mock.ExpectQuery("FROM availability_windows").
		WithArgs("t1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "service_id", "weekday", "date", "start_minute", "end_minute", "capacity", "timezone"}).
			AddRow("w1", "t1", "s1", &weekday, (*time.Time)(nil), 540, 1020, 2, "UTC"))

	repo := NewCatalogRepository(mock)
	windows, err := repo.ListWindows(context.Background(), "t1", "s1")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	require.NotNil(t, windows[0].Weekday)
	require.Equal(t, 1, *windows[0].Weekday)
	require.Equal(t, 2, windows[0].Capacity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_BookingTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	appt := model.Appointment{
		ID:         "a1",
		TenantID:   "t1",
		CustomerID: "c1",
		ServiceID:  "s1",
		StartAt:    start,
		EndAt:      end,
		Status:     model.AppointmentStatusPending,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("s1", "t1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("t1", "s1", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("a1", "t1", "c1", "s1", (*string)(nil), start, end, model.AppointmentStatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))
	mock.ExpectCommit()

	repo := NewAppointmentRepository(mock)
	err = repo.WithTx(context.Background(), func(ctx context.Context) error {
		if err := repo.LockService(ctx, "t1", "s1"); err != nil {
			return err
		}
		n, err := repo.CountOverlapping(ctx, "t1", "s1", availability.Interval{Start: start, End: end})
		if err != nil {
			return err
		}
		require.Zero(t, n)
		return repo.Insert(ctx, &appt)
	})
	require.NoError(t, err)
	require.False(t, appt.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("missing", "t1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	repo := NewAppointmentRepository(mock)
	err = repo.WithTx(context.Background(), func(ctx context.Context) error {
		return repo.LockService(ctx, "t1", "missing")
	})
	require.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_TransientConflictNormalized(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("s1", "t1").
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	repo := NewAppointmentRepository(mock)
	err = repo.WithTx(context.Background(), func(ctx context.Context) error {
		return repo.LockService(ctx, "t1", "s1")
	})
	require.ErrorIs(t, err, model.ErrTransientConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_TransientConflict_Deadlock(t *testing.T) {
	err := normalizeTransient(&pgconn.PgError{Code: "40P01"})
	require.ErrorIs(t, err, model.ErrTransientConflict)

	other := errors.New("boom")
	require.Equal(t, other, normalizeTransient(other))
	require.NoError(t, normalizeTransient(nil))
}

func TestAppointmentRepository_MarkCanceled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	canceledAt := time.Now().UTC()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs("a1", "t1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "customer_id", "service_id", "variant_id",
			"start_at", "end_at", "status", "canceled_at", "created_at",
		}).AddRow("a1", "t1", "c1", "s1", (*string)(nil),
			start, start.Add(time.Hour), model.AppointmentStatusCanceled, &canceledAt, start))

	repo := NewAppointmentRepository(mock)
	appt, err := repo.MarkCanceled(context.Background(), "t1", "a1")
	require.NoError(t, err)
	require.Equal(t, model.AppointmentStatusCanceled, appt.Status)
	require.NotNil(t, appt.CanceledAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_ListFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM appointments").
		WithArgs("t1", "s1", model.AppointmentStatusPending, 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "customer_id", "service_id", "variant_id",
			"start_at", "end_at", "status", "canceled_at", "created_at",
		}).AddRow("a1", "t1", "c1", "s1", (*string)(nil),
			start, start.Add(time.Hour), model.AppointmentStatusPending, (*time.Time)(nil), start))

	repo := NewAppointmentRepository(mock)
	appts, err := repo.List(context.Background(), "t1", booking.ListFilter{
		ServiceID: "s1",
		Status:    model.AppointmentStatusPending,
	})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	require.Equal(t, "a1", appts[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
