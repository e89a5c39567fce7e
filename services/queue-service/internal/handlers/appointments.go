package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/sqip/libs/auth"
	"github.com/md-rashed-zaman/sqip/libs/httpx"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/lifecycle"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/outbox"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/storage"
)

type createRequest struct {
	OrganizationID string `json:"organization_id"`
	CategoryID     string `json:"category_id"`
	// UserID books on behalf of another user; admins only.
	UserID        string `json:"user_id"`
	ScheduledTime string `json:"scheduled_time"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if req.OrganizationID == "" || req.CategoryID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "organization_id and category_id are required")
		return
	}

	userID := c.UserID()
	if u := strings.TrimSpace(req.UserID); u != "" && u != userID {
		if !c.AdminOf(req.OrganizationID) {
			forbidden(w)
			return
		}
		userID = u
	}

	var start time.Time
	if req.ScheduledTime != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid scheduled_time, want RFC3339")
			return
		}
		start = t
	}

	appt, err := h.svc.Create(r.Context(), lifecycle.CreateRequest{
		OrganizationID: req.OrganizationID,
		CategoryID:     req.CategoryID,
		UserID:         userID,
		Start:          start,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.emit(r.Context(), outbox.AppointmentCreated, appt)
	httpx.WriteJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	a, ok := h.load(w, r, c, false)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, true, outbox.AppointmentCheckedIn, h.svc.CheckIn)
}

// Cancel is open to the appointment's owner as well as staff.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, false, outbox.AppointmentCancelled, h.svc.Cancel)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, true, outbox.AppointmentActivated, h.svc.Activate)
}

type moveRequest struct {
	PreviousAppointmentID *int64 `json:"previous_appointment_id"`
}

// Move places the appointment right behind previous_appointment_id, or at
// the front when it is null.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, ok := h.load(w, r, c, true)
	if !ok {
		return
	}
	moved, err := h.svc.Move(r.Context(), a.ID, req.PreviousAppointmentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.emit(r.Context(), outbox.AppointmentMoved, moved)
	httpx.WriteJSON(w, http.StatusOK, toResponse(moved))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, staffOnly bool, eventType string,
	op func(ctx context.Context, id int64) (model.Appointment, error)) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	a, ok := h.load(w, r, c, staffOnly)
	if !ok {
		return
	}
	updated, err := op(r.Context(), a.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.emit(r.Context(), eventType, updated)
	httpx.WriteJSON(w, http.StatusOK, toResponse(updated))
}

// load fetches the path appointment and checks the caller may act on it.
// Staff are superusers and admins of the appointment's organization.
func (h *Handler) load(w http.ResponseWriter, r *http.Request, c *auth.Claims, staffOnly bool) (model.Appointment, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return model.Appointment{}, false
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return model.Appointment{}, false
	}
	staff := c.AdminOf(a.OrganizationID)
	if !staff && (staffOnly || a.UserID != c.UserID()) {
		forbidden(w)
		return model.Appointment{}, false
	}
	return a, true
}

type pageResponse struct {
	Results  []appointmentResponse `json:"results"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// ListMine lists the caller's appointments.
//
//	?type=all|scheduled|unscheduled (default all)
//	?status=active|inactive|checkin|cancel (default active)
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f, page, err := listFilter(q.Get("status"), q.Get("page"), q.Get("page_size"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch q.Get("type") {
	case "", "all":
	case "scheduled":
		f.Scheduled = boolPtr(true)
	case "unscheduled":
		f.Scheduled = boolPtr(false)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "type must be all, scheduled or unscheduled")
		return
	}
	f.UserID = c.UserID()
	h.writePage(w, r, f, page)
}

// listStaff lists scheduled or unscheduled appointments by category.
// Superusers see every organization, admins their own, users only
// themselves.
//
//	?category_id=a&category_id=b
//	?status=active (default)
func (h *Handler) listStaff(scheduled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := caller(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		f, page, err := listFilter(q.Get("status"), q.Get("page"), q.Get("page_size"))
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Scheduled = boolPtr(scheduled)
		f.CategoryIDs = splitValues(q["category_id"])

		switch {
		case c.IsSuperuser():
		case c.Role == auth.RoleAdmin && c.OrganizationID != "":
			f.OrganizationID = c.OrganizationID
		default:
			f.UserID = c.UserID()
		}
		h.writePage(w, r, f, page)
	}
}

// Queue lists one partition in queue order. Staff only.
//
//	?organization_id=&category_id=&status=active&status=inactive
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	key := model.PartitionKey{OrganizationID: q.Get("organization_id"), CategoryID: q.Get("category_id")}
	if key.OrganizationID == "" || key.CategoryID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "organization_id and category_id are required")
		return
	}
	if !c.AdminOf(key.OrganizationID) {
		forbidden(w)
		return
	}
	var statuses []model.Status
	for _, raw := range splitValues(q["status"]) {
		st, err := model.ParseStatus(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		statuses = append(statuses, st)
	}
	appts, err := h.svc.Queue(r.Context(), key, statuses...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"results": toResponses(appts)})
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, f storage.Filter, page int) {
	f = f.Normalize()
	f.Offset = (page - 1) * f.Limit
	appts, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pageResponse{Results: toResponses(appts), Page: page, PageSize: f.Limit})
}

func listFilter(status, page, pageSize string) (storage.Filter, int, error) {
	var f storage.Filter
	if status == "" {
		status = string(model.StatusActive)
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return f, 0, err
	}
	f.Statuses = []model.Status{st}

	p := 1
	if page != "" {
		if p, err = strconv.Atoi(page); err != nil || p < 1 {
			return f, 0, errInvalidParam("page")
		}
	}
	if pageSize != "" {
		if f.Limit, err = strconv.Atoi(pageSize); err != nil || f.Limit < 1 {
			return f, 0, errInvalidParam("page_size")
		}
	}
	return f, p, nil
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func errInvalidParam(name string) error {
	return errors.New("invalid " + name)
}
