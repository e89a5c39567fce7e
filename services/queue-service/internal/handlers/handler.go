// Package handlers exposes the appointment lifecycle over HTTP.
//
// Handlers authorize the caller from JWT claims. The engines below only see
// the caller's user id, for created_by and updated_by.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/sqip/libs/auth"
	"github.com/md-rashed-zaman/sqip/libs/httpx"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/actor"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/lifecycle"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/locks"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/outbox"
)

type Handler struct {
	svc    *lifecycle.Service
	events outbox.Writer
	logger *slog.Logger
}

func New(svc *lifecycle.Service, events outbox.Writer, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, events: events, logger: logger}
}

// Register mounts the API on mux behind authn.
func (h *Handler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(withActor(fn)))
	}
	route("POST /api/v1/appointments", h.Create)
	route("GET /api/v1/appointments", h.ListMine)
	route("GET /api/v1/appointments/queue", h.Queue)
	route("GET /api/v1/appointments/scheduled", h.listStaff(true))
	route("GET /api/v1/appointments/unscheduled", h.listStaff(false))
	route("GET /api/v1/appointments/{id}", h.Get)
	route("POST /api/v1/appointments/{id}/check-in", h.CheckIn)
	route("POST /api/v1/appointments/{id}/cancel", h.Cancel)
	route("POST /api/v1/appointments/{id}/activate", h.Activate)
	route("POST /api/v1/appointments/{id}/move", h.Move)
	route("GET /api/v1/categories/{id}/slots", h.Slots)
}

type appointmentResponse struct {
	ID               int64      `json:"id"`
	OrganizationID   string     `json:"organization_id"`
	CategoryID       string     `json:"category_id"`
	UserID           string     `json:"user_id"`
	IsScheduled      bool       `json:"is_scheduled"`
	Status           string     `json:"status"`
	Counter          string     `json:"counter,omitempty"`
	ScheduledTime    *time.Time `json:"scheduled_time,omitempty"`
	ScheduledEndTime *time.Time `json:"scheduled_end_time,omitempty"`
	DateCreated      time.Time  `json:"date_created"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CreatedBy        string     `json:"created_by"`
	UpdatedBy        string     `json:"updated_by"`
}

func toResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:               a.ID,
		OrganizationID:   a.OrganizationID,
		CategoryID:       a.CategoryID,
		UserID:           a.UserID,
		IsScheduled:      a.IsScheduled,
		Status:           string(a.Status),
		ScheduledTime:    a.ScheduledTime,
		ScheduledEndTime: a.ScheduledEndTime,
		DateCreated:      a.DateCreated,
		UpdatedAt:        a.UpdatedAt,
		CreatedBy:        a.CreatedBy,
		UpdatedBy:        a.UpdatedBy,
	}
	if !a.IsScheduled {
		resp.Counter = a.Counter.String()
	}
	return resp
}

func toResponses(appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toResponse(a))
	}
	return out
}

// fail maps err onto a status code. Errors without a kind are logged and
// reported as 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.Kind(err) {
	case apperr.ErrValidation:
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case apperr.ErrNotFound:
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case apperr.ErrConflict:
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case apperr.ErrState:
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		if errors.Is(err, locks.ErrLockTimeout) {
			httpx.WriteError(w, http.StatusServiceUnavailable, "queue busy, retry")
			return
		}
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// emit records an event for a. A failed write is logged; the operation
// itself has already been applied.
func (h *Handler) emit(ctx context.Context, eventType string, appts ...model.Appointment) {
	for _, a := range appts {
		evt, err := outbox.AppointmentEvent(eventType, a)
		if err == nil {
			err = h.events.Write(ctx, evt)
		}
		if err != nil {
			h.logger.Error("outbox write failed", "event_type", eventType, "appointment_id", a.ID, "err", err)
		}
	}
}

// withActor records the authenticated caller as the principal of any change
// made while serving the request.
func withActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, ok := auth.FromContext(r.Context()); ok {
			r = r.WithContext(actor.With(r.Context(), c.UserID()))
		}
		next(w, r)
	}
}

func caller(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	c, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return c, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid appointment id")
		return 0, false
	}
	return id, true
}

func forbidden(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusForbidden, "not allowed")
}
