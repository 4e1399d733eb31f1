package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bochiedev/tulia-booking/libs/auth"
	"github.com/bochiedev/tulia-booking/libs/httpx"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/booking"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/model"
)

// BookingEngine is the application surface the HTTP layer drives.
type BookingEngine interface {
	CreateAppointment(ctx context.Context, in booking.CreateAppointmentInput) (model.Appointment, error)
	CancelAppointment(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error)
	CheckCapacity(ctx context.Context, tenantID, serviceID string, start, end time.Time) (int, error)
	ListAppointments(ctx context.Context, tenantID string, f booking.ListFilter) ([]model.Appointment, error)
}

type BookingHandler struct {
	engine    BookingEngine
	logger    *slog.Logger
	jwtSecret string
}

func NewBookingHandler(engine BookingEngine, logger *slog.Logger, jwtSecret string) *BookingHandler {
	return &BookingHandler{engine: engine, logger: logger, jwtSecret: jwtSecret}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/appointments", h.appointments)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/capacity", h.Capacity)
}

func (h *BookingHandler) appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createAppointmentRequest struct {
	CustomerID string `json:"customer_id"`
	ServiceID  string `json:"service_id"`
	VariantID  string `json:"variant_id,omitempty"`
	StartAt    string `json:"start_at"`
	EndAt      string `json:"end_at"`
}

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	CustomerID    string `json:"customer_id"`
	ServiceID     string `json:"service_id"`
	VariantID     string `json:"variant_id,omitempty"`
	StartAt       string `json:"start_at"`
	EndAt         string `json:"end_at"`
	Status        string `json:"status"`
	CanceledAt    string `json:"canceled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type capacityResponse struct {
	ServiceID string `json:"service_id"`
	StartAt   string `json:"start_at"`
	EndAt     string `json:"end_at"`
	Available int    `json:"available"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.VariantID = strings.TrimSpace(req.VariantID)
	if req.CustomerID == "" || req.ServiceID == "" {
		http.Error(w, "customer_id and service_id required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		http.Error(w, "invalid start_at", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		http.Error(w, "invalid end_at", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.CreateAppointment(r.Context(), booking.CreateAppointmentInput{
		TenantID:   tenantID,
		CustomerID: req.CustomerID,
		ServiceID:  req.ServiceID,
		VariantID:  req.VariantID,
		Start:      start,
		End:        end,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.CancelAppointment(r.Context(), tenantID, req.AppointmentID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := booking.ListFilter{
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
	}
	if status := strings.TrimSpace(q.Get("status")); status != "" {
		filter.Status = model.AppointmentStatus(status)
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		filter.To = t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}

	appts, err := h.engine.ListAppointments(r.Context(), tenantID, filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("start_at")))
	if err != nil {
		http.Error(w, "invalid start_at", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("end_at")))
	if err != nil {
		http.Error(w, "invalid end_at", http.StatusBadRequest)
		return
	}

	available, err := h.engine.CheckCapacity(r.Context(), tenantID, serviceID, start, end)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, capacityResponse{
		ServiceID: serviceID,
		StartAt:   start.UTC().Format(time.RFC3339),
		EndAt:     end.UTC().Format(time.RFC3339),
		Available: available,
	})
}

// tenantID resolves the caller's tenant from a bearer token when a JWT secret
// is configured, falling back to the X-Tenant-Id header for internal callers.
func (h *BookingHandler) tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.jwtSecret != "" {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(token), h.jwtSecret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return "", false
			}
			if claims.TenantID == "" {
				http.Error(w, "token missing tenant", http.StatusUnauthorized)
				return "", false
			}
			return claims.TenantID, true
		}
	}

	tenantID := strings.TrimSpace(r.Header.Get(httpx.TenantIDHeader))
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusUnauthorized)
		return "", false
	}
	return tenantID, true
}

func (h *BookingHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInterval):
		http.Error(w, "end_at must be after start_at", http.StatusBadRequest)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, model.ErrNoCapacityAvailable):
		http.Error(w, "no capacity available", http.StatusConflict)
	case errors.Is(err, model.ErrOutsideAvailabilityWindow):
		http.Error(w, "requested time is outside availability windows", http.StatusUnprocessableEntity)
	default:
		h.logger.Error("booking request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toAppointmentResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: appt.ID,
		CustomerID:    appt.CustomerID,
		ServiceID:     appt.ServiceID,
		StartAt:       appt.StartAt.UTC().Format(time.RFC3339),
		EndAt:         appt.EndAt.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.VariantID != nil {
		resp.VariantID = *appt.VariantID
	}
	if appt.CanceledAt != nil {
		resp.CanceledAt = appt.CanceledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
