package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bochiedev/tulia-booking/libs/auth"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/booking"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/model"
)

type stubEngine struct {
	createErr  error
	cancelErr  error
	lastCreate booking.CreateAppointmentInput
	lastTenant string
	capacity   int
	appts      []model.Appointment
}

func (s *stubEngine) CreateAppointment(_ context.Context, in booking.CreateAppointmentInput) (model.Appointment, error) {
	s.lastCreate = in
	if s.createErr != nil {
		return model.Appointment{}, s.createErr
	}
	return model.Appointment{
		ID:         "a1",
		TenantID:   in.TenantID,
		CustomerID: in.CustomerID,
		ServiceID:  in.ServiceID,
		StartAt:    in.Start,
		EndAt:      in.End,
		Status:     model.AppointmentStatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (s *stubEngine) CancelAppointment(_ context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	s.lastTenant = tenantID
	if s.cancelErr != nil {
		return model.Appointment{}, s.cancelErr
	}
	now := time.Now().UTC()
	return model.Appointment{
		ID:         appointmentID,
		TenantID:   tenantID,
		Status:     model.AppointmentStatusCanceled,
		CanceledAt: &now,
	}, nil
}

func (s *stubEngine) CheckCapacity(_ context.Context, tenantID, _ string, _, _ time.Time) (int, error) {
	s.lastTenant = tenantID
	return s.capacity, nil
}

func (s *stubEngine) ListAppointments(_ context.Context, tenantID string, _ booking.ListFilter) ([]model.Appointment, error) {
	s.lastTenant = tenantID
	return s.appts, nil
}

func newTestHandler(engine *stubEngine, jwtSecret string) *http.ServeMux {
	h := NewBookingHandler(engine, slog.New(slog.NewTextHandler(io.Discard, nil)), jwtSecret)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

const createBody = `{
	"customer_id": "c1",
	"service_id": "s1",
	"start_at": "2026-02-02T10:00:00Z",
	"end_at": "2026-02-02T11:00:00Z"
}`

func doCreate(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreate_Success(t *testing.T) {
	engine := &stubEngine{}
	rec := doCreate(t, newTestHandler(engine, ""), createBody)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AppointmentID != "a1" || resp.Status != "pending" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if engine.lastCreate.TenantID != "t1" {
		t.Fatalf("expected tenant from header, got %q", engine.lastCreate.TenantID)
	}
}

func TestCreate_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrInvalidInterval, http.StatusBadRequest},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrNoCapacityAvailable, http.StatusConflict},
		{model.ErrOutsideAvailabilityWindow, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		engine := &stubEngine{createErr: tc.err}
		rec := doCreate(t, newTestHandler(engine, ""), createBody)
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestCreate_BadRequests(t *testing.T) {
	mux := newTestHandler(&stubEngine{}, "")

	if rec := doCreate(t, mux, `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
	if rec := doCreate(t, mux, `{"customer_id":"c1"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}
	if rec := doCreate(t, mux, `{"customer_id":"c1","service_id":"s1","start_at":"yesterday","end_at":"2026-02-02T11:00:00Z"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamp, got %d", rec.Code)
	}
}

func TestCreate_MissingTenant(t *testing.T) {
	mux := newTestHandler(&stubEngine{}, "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(createBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without tenant, got %d", rec.Code)
	}
}

func TestCreate_BearerToken(t *testing.T) {
	const secret = "test-secret"
	engine := &stubEngine{}
	mux := newTestHandler(engine, secret)

	token, err := auth.SignHS256(auth.Claims{
		Sub:      "u1",
		TenantID: "t9",
		Exp:      time.Now().Add(time.Hour).Unix(),
		Iat:      time.Now().Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(createBody))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if engine.lastCreate.TenantID != "t9" {
		t.Fatalf("expected tenant from token, got %q", engine.lastCreate.TenantID)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(createBody))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	engine := &stubEngine{}
	mux := newTestHandler(engine, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"appointment_id":"a1"}`))
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "canceled" || resp.CanceledAt == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCancel_NotFound(t *testing.T) {
	engine := &stubEngine{cancelErr: model.ErrNotFound}
	mux := newTestHandler(engine, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"appointment_id":"missing"}`))
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestList(t *testing.T) {
	engine := &stubEngine{appts: []model.Appointment{
		{ID: "a1", TenantID: "t1", Status: model.AppointmentStatusPending, StartAt: time.Now(), EndAt: time.Now().Add(time.Hour)},
	}}
	mux := newTestHandler(engine, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?service_id=s1&limit=10", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].AppointmentID != "a1" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestCapacity(t *testing.T) {
	engine := &stubEngine{capacity: 3}
	mux := newTestHandler(engine, "")

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/capacity?service_id=s1&start_at=2026-02-02T10:00:00Z&end_at=2026-02-02T11:00:00Z", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp capacityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Available != 3 {
		t.Fatalf("expected 3 available, got %d", resp.Available)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/capacity?service_id=s1&start_at=junk&end_at=junk", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamps, got %d", rec.Code)
	}
}
