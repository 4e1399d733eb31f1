package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bochiedev/tulia-booking/libs/db"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/model"
)

// CatalogRepository reads the tenant-administered offering tables. All
// queries are tenant-scoped; a row owned by another tenant scans as
// model.ErrNotFound.
type CatalogRepository struct {
	conn db.Conn
}

func NewCatalogRepository(conn db.Conn) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

func (r *CatalogRepository) GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error) {
	var svc model.Service
	err := db.Runner(ctx, r.conn).QueryRow(ctx, `
		SELECT id::text, tenant_id::text, title, base_price::text, currency, active, created_at
		FROM services
		WHERE id = $1 AND tenant_id = $2
	`, serviceID, tenantID).Scan(
		&svc.ID,
		&svc.TenantID,
		&svc.Title,
		&svc.BasePrice,
		&svc.Currency,
		&svc.Active,
		&svc.CreatedAt,
	)
	if err != nil {
		return model.Service{}, normalizeNotFound(err)
	}
	return svc, nil
}

func (r *CatalogRepository) GetVariant(ctx context.Context, tenantID, serviceID, variantID string) (model.ServiceVariant, error) {
	var v model.ServiceVariant
	// Joining services enforces the tenant scope; variants carry no tenant_id.
	err := db.Runner(ctx, r.conn).QueryRow(ctx, `
		SELECT v.id::text, v.service_id::text, v.duration_minutes, v.price::text
		FROM service_variants v
		JOIN services s ON s.id = v.service_id
		WHERE v.id = $1 AND v.service_id = $2 AND s.tenant_id = $3
	`, variantID, serviceID, tenantID).Scan(
		&v.ID,
		&v.ServiceID,
		&v.DurationMinutes,
		&v.Price,
	)
	if err != nil {
		return model.ServiceVariant{}, normalizeNotFound(err)
	}
	return v, nil
}

func (r *CatalogRepository) GetCustomer(ctx context.Context, tenantID, customerID string) (model.Customer, error) {
	var c model.Customer
	err := db.Runner(ctx, r.conn).QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, COALESCE(phone, ''), created_at
		FROM customers
		WHERE id = $1 AND tenant_id = $2
	`, customerID, tenantID).Scan(
		&c.ID,
		&c.TenantID,
		&c.Name,
		&c.Phone,
		&c.CreatedAt,
	)
	if err != nil {
		return model.Customer{}, normalizeNotFound(err)
	}
	return c, nil
}

func (r *CatalogRepository) ListWindows(ctx context.Context, tenantID, serviceID string) ([]model.AvailabilityWindow, error) {
	rows, err := db.Runner(ctx, r.conn).Query(ctx, `
		SELECT id::text, tenant_id::text, service_id::text, weekday, date, start_minute, end_minute, capacity, timezone
		FROM availability_windows
		WHERE tenant_id = $1 AND service_id = $2
		ORDER BY id
	`, tenantID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		if err := rows.Scan(
			&w.ID,
			&w.TenantID,
			&w.ServiceID,
			&w.Weekday,
			&w.Date,
			&w.StartMinute,
			&w.EndMinute,
			&w.Capacity,
			&w.Timezone,
		); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

func normalizeNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}
