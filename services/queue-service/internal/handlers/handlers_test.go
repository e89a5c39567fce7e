package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/sqip/libs/auth"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/availability"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/handlers"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/lifecycle"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/locks"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/outbox"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/queue"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/schedule"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/storage"
)

const secret = "test-secret"

var now = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC) // Monday

type api struct {
	t      *testing.T
	srv    http.Handler
	events *outbox.MemoryWriter
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	locker := locks.NewLocal()

	var h schedule.Hours
	h.Opening[time.Monday] = []schedule.Window{{Start: 9 * 60, End: 11 * 60}}
	store.PutOrganization(model.Organization{ID: "org-1", Name: "Clinic", Status: model.EntityActive})
	store.PutCategory(model.Category{ID: "walk-in", OrganizationID: "org-1", Status: model.EntityActive})
	store.PutCategory(model.Category{
		ID: "consult", OrganizationID: "org-1", Status: model.EntityActive,
		IsScheduled: true, TimeZone: "UTC", Hours: h, Interval: 30 * time.Minute, MaxAdvanceDays: 7,
	})

	svc := lifecycle.NewService(store, store,
		queue.NewEngine(store, locker, logger),
		availability.NewEngine(store, locker, logger).WithClock(func() time.Time { return now }),
		logger)
	events := outbox.NewMemoryWriter()

	mux := http.NewServeMux()
	handlers.New(svc, events, logger).Register(mux, auth.Middleware(auth.NewHS256Verifier(secret)))
	return &api{t: t, srv: mux, events: events}
}

func token(t *testing.T, user, role, org string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user},
		Role:             role,
		OrganizationID:   org,
	}, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *api) do(tok, method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.srv.ServeHTTP(rec, req)
	return rec
}

type appt struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Counter     string `json:"counter"`
	IsScheduled bool   `json:"is_scheduled"`
	CreatedBy   string `json:"created_by"`
	UpdatedBy   string `json:"updated_by"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *api) walkIn(user string) appt {
	a.t.Helper()
	rec := a.do(token(a.t, user, auth.RoleUser, ""), http.MethodPost, "/api/v1/appointments",
		map[string]string{"organization_id": "org-1", "category_id": "walk-in"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[appt](a.t, rec)
}

func TestRequiresToken(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusUnauthorized, a.do("", http.MethodGet, "/api/v1/appointments", nil).Code)
}

func TestCreate_WalkIn(t *testing.T) {
	a := newAPI(t)
	first := a.walkIn("alice")
	second := a.walkIn("bob")

	assert.Equal(t, "1", first.Counter)
	assert.Equal(t, "2", second.Counter)
	assert.Equal(t, "active", first.Status)

	dup := a.do(token(t, "alice", auth.RoleUser, ""), http.MethodPost, "/api/v1/appointments",
		map[string]string{"organization_id": "org-1", "category_id": "walk-in"})
	assert.Equal(t, http.StatusConflict, dup.Code)

	events := a.events.Events()
	require.Len(t, events, 2)
	assert.Equal(t, outbox.AppointmentCreated, events[0].EventType)
}

func TestCreate_OnBehalfRequiresAdmin(t *testing.T) {
	a := newAPI(t)
	body := map[string]string{"organization_id": "org-1", "category_id": "walk-in", "user_id": "carol"}

	rec := a.do(token(t, "mallory", auth.RoleUser, ""), http.MethodPost, "/api/v1/appointments", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(token(t, "admin", auth.RoleAdmin, "org-1"), http.MethodPost, "/api/v1/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[appt](t, rec)
	assert.Equal(t, "carol", got.UserID)
	assert.Equal(t, "admin", got.CreatedBy)

	rec = a.do(token(t, "carol", auth.RoleUser, ""), http.MethodPost, "/api/v1/appointments/"+itoa(got.ID)+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[appt](t, rec)
	assert.Equal(t, "admin", got.CreatedBy)
	assert.Equal(t, "carol", got.UpdatedBy)
}

func TestCreate_BadRequests(t *testing.T) {
	a := newAPI(t)
	tok := token(t, "alice", auth.RoleUser, "")

	rec := a.do(tok, http.MethodPost, "/api/v1/appointments", map[string]string{"organization_id": "org-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(tok, http.MethodPost, "/api/v1/appointments", map[string]string{
		"organization_id": "org-1", "category_id": "consult", "scheduled_time": "tomorrow",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(tok, http.MethodPost, "/api/v1/appointments", map[string]string{"organization_id": "org-1", "category_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduledBookingAndSlots(t *testing.T) {
	a := newAPI(t)
	body := map[string]string{
		"organization_id": "org-1", "category_id": "consult", "scheduled_time": "2026-03-02T09:30:00Z",
	}

	rec := a.do(token(t, "alice", auth.RoleUser, ""), http.MethodPost, "/api/v1/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booked := decode[appt](t, rec)
	assert.True(t, booked.IsScheduled)
	assert.Empty(t, booked.Counter)

	rec = a.do(token(t, "bob", auth.RoleUser, ""), http.MethodPost, "/api/v1/appointments", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(token(t, "bob", auth.RoleUser, ""), http.MethodGet, "/api/v1/categories/consult/slots?date=2026-03-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decode[availability.Day](t, rec)
	assert.Equal(t, "2026-03-02", day.Date)
	assert.Len(t, day.Slots, 4)
	assert.Equal(t, 3, day.AvailableCount)

	rec = a.do(token(t, "bob", auth.RoleUser, ""), http.MethodGet, "/api/v1/categories/consult/slots?date=03/02", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(token(t, "bob", auth.RoleUser, ""), http.MethodGet, "/api/v1/categories/walk-in/slots?date=2026-03-02", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	admin := token(t, "admin", auth.RoleAdmin, "org-1")
	rec = a.do(admin, http.MethodPost, "/api/v1/appointments/"+itoa(booked.ID)+"/check-in", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCheckIn_StaffOnly(t *testing.T) {
	a := newAPI(t)
	x := a.walkIn("alice")
	path := "/api/v1/appointments/" + itoa(x.ID) + "/check-in"

	assert.Equal(t, http.StatusForbidden, a.do(token(t, "alice", auth.RoleUser, ""), http.MethodPost, path, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(token(t, "other", auth.RoleAdmin, "org-2"), http.MethodPost, path, nil).Code)

	rec := a.do(token(t, "admin", auth.RoleAdmin, "org-1"), http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "checkin", decode[appt](t, rec).Status)

	rec = a.do(token(t, "root", auth.RoleSuperuser, ""), http.MethodPost, path, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCancel_ByOwner(t *testing.T) {
	a := newAPI(t)
	x := a.walkIn("alice")
	path := "/api/v1/appointments/" + itoa(x.ID) + "/cancel"

	assert.Equal(t, http.StatusForbidden, a.do(token(t, "bob", auth.RoleUser, ""), http.MethodPost, path, nil).Code)

	rec := a.do(token(t, "alice", auth.RoleUser, ""), http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancel", decode[appt](t, rec).Status)

	events := a.events.Events()
	assert.Equal(t, outbox.AppointmentCancelled, events[len(events)-1].EventType)
}

func TestMoveAndQueue(t *testing.T) {
	a := newAPI(t)
	first := a.walkIn("A")
	a.walkIn("B")
	last := a.walkIn("C")
	admin := token(t, "admin", auth.RoleAdmin, "org-1")

	rec := a.do(admin, http.MethodPost, "/api/v1/appointments/"+itoa(last.ID)+"/move",
		map[string]any{"previous_appointment_id": first.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1.5", decode[appt](t, rec).Counter)

	rec = a.do(admin, http.MethodGet, "/api/v1/appointments/queue?organization_id=org-1&category_id=walk-in", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queued := decode[struct {
		Results []appt `json:"results"`
	}](t, rec).Results
	require.Len(t, queued, 3)
	assert.Equal(t, []string{"A", "C", "B"}, []string{queued[0].UserID, queued[1].UserID, queued[2].UserID})

	rec = a.do(admin, http.MethodPost, "/api/v1/appointments/"+itoa(last.ID)+"/move",
		map[string]any{"previous_appointment_id": first.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(admin, http.MethodPost, "/api/v1/appointments/"+itoa(last.ID)+"/move",
		map[string]any{"previous_appointment_id": nil})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(token(t, "A", auth.RoleUser, ""), http.MethodGet, "/api/v1/appointments/queue?organization_id=org-1&category_id=walk-in", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListings(t *testing.T) {
	a := newAPI(t)
	a.walkIn("alice")
	a.walkIn("bob")
	rec := a.do(token(t, "alice", auth.RoleUser, ""), http.MethodPost, "/api/v1/appointments", map[string]string{
		"organization_id": "org-1", "category_id": "consult", "scheduled_time": "2026-03-02T09:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	type page struct {
		Results  []appt `json:"results"`
		PageSize int    `json:"page_size"`
	}

	alice := token(t, "alice", auth.RoleUser, "")
	mine := decode[page](t, a.do(alice, http.MethodGet, "/api/v1/appointments", nil))
	assert.Len(t, mine.Results, 2)
	assert.Equal(t, 10, mine.PageSize)

	mine = decode[page](t, a.do(alice, http.MethodGet, "/api/v1/appointments?type=scheduled", nil))
	require.Len(t, mine.Results, 1)
	assert.True(t, mine.Results[0].IsScheduled)

	assert.Equal(t, http.StatusBadRequest, a.do(alice, http.MethodGet, "/api/v1/appointments?type=bogus", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(alice, http.MethodGet, "/api/v1/appointments?status=done", nil).Code)

	admin := token(t, "admin", auth.RoleAdmin, "org-1")
	unscheduled := decode[page](t, a.do(admin, http.MethodGet, "/api/v1/appointments/unscheduled?category_id=walk-in", nil))
	assert.Len(t, unscheduled.Results, 2)

	own := decode[page](t, a.do(alice, http.MethodGet, "/api/v1/appointments/unscheduled", nil))
	assert.Len(t, own.Results, 1)

	scheduled := decode[page](t, a.do(admin, http.MethodGet, "/api/v1/appointments/scheduled?page_size=1", nil))
	assert.Len(t, scheduled.Results, 1)
	assert.Equal(t, 1, scheduled.PageSize)
}

func TestGet(t *testing.T) {
	a := newAPI(t)
	x := a.walkIn("alice")

	rec := a.do(token(t, "alice", auth.RoleUser, ""), http.MethodGet, "/api/v1/appointments/"+itoa(x.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, x.ID, decode[appt](t, rec).ID)

	assert.Equal(t, http.StatusForbidden, a.do(token(t, "bob", auth.RoleUser, ""), http.MethodGet, "/api/v1/appointments/"+itoa(x.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(token(t, "bob", auth.RoleUser, ""), http.MethodGet, "/api/v1/appointments/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(token(t, "bob", auth.RoleUser, ""), http.MethodGet, "/api/v1/appointments/abc", nil).Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
