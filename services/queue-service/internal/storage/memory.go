package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/actor"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
)

// Memory is an in-process Store and Directory.
type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	appts   map[int64]model.Appointment
	orgs    map[string]model.Organization
	cats    map[string]model.Category
	nowFunc func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		appts:   make(map[int64]model.Appointment),
		orgs:    make(map[string]model.Organization),
		cats:    make(map[string]model.Category),
		nowFunc: time.Now,
	}
}

func (m *Memory) PutOrganization(o model.Organization) {
	m.mu.Lock()
	m.orgs[o.ID] = o
	m.mu.Unlock()
}

func (m *Memory) PutCategory(c model.Category) {
	m.mu.Lock()
	m.cats[c.ID] = c
	m.mu.Unlock()
}

func (m *Memory) GetOrganization(_ context.Context, id string) (model.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return model.Organization{}, apperr.NotFound("organization", id)
	}
	return o, nil
}

func (m *Memory) GetCategory(_ context.Context, id string) (model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cats[id]
	if !ok {
		return model.Category{}, apperr.NotFound("category", id)
	}
	return c, nil
}

func (m *Memory) SetCategoryStatus(_ context.Context, id string, status model.EntityStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cats[id]
	if !ok {
		return apperr.NotFound("category", id)
	}
	c.Status = status
	m.cats[id] = c
	return nil
}

func (m *Memory) CreateAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.IsScheduled && a.ScheduledTime != nil && a.ScheduledEndTime != nil {
		for _, b := range m.appts {
			if b.IsScheduled && b.CategoryID == a.CategoryID && b.Status != model.StatusCancel &&
				a.ScheduledTime.Before(*b.ScheduledEndTime) && b.ScheduledTime.Before(*a.ScheduledEndTime) {
				return model.Appointment{}, apperr.ErrSlotNotAvailable
			}
		}
	}

	a = withAuthors(a)
	m.nextID++
	now := m.nowFunc().UTC()
	a.ID = m.nextID
	a.DateCreated = now
	a.UpdatedAt = now
	m.appts[a.ID] = a
	return a, nil
}

func (m *Memory) GetAppointment(_ context.Context, id int64) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment", id)
	}
	return a, nil
}

func (m *Memory) UpdateAppointment(_ context.Context, a model.Appointment, from model.Status) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appts[a.ID]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment", a.ID)
	}
	if cur.Status != from {
		return model.Appointment{}, fmt.Errorf("%w: appointment %d is %s, expected %s", apperr.ErrStaleAppointment, a.ID, cur.Status, from)
	}
	cur.Status = a.Status
	cur.Counter = a.Counter
	cur.UpdatedBy = a.UpdatedBy
	cur.UpdatedAt = m.nowFunc().UTC()
	m.appts[a.ID] = cur
	return cur, nil
}

func (m *Memory) UpdateCounters(_ context.Context, counters map[int64]model.Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range counters {
		if _, ok := m.appts[id]; !ok {
			return apperr.NotFound("appointment", id)
		}
	}
	now := m.nowFunc().UTC()
	for id, c := range counters {
		a := m.appts[id]
		a.Counter = c
		a.UpdatedAt = now
		m.appts[id] = a
	}
	return nil
}

func (m *Memory) ListPartition(_ context.Context, p model.PartitionKey) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if !a.IsScheduled && a.Partition() == p && a.Status.Queued() {
			out = append(out, a)
		}
	}
	model.SortQueue(out)
	return out, nil
}

func (m *Memory) ListBooked(_ context.Context, categoryID string, from, to time.Time) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if !a.IsScheduled || a.CategoryID != categoryID || a.Status == model.StatusCancel || a.ScheduledTime == nil {
			continue
		}
		if a.ScheduledTime.Before(to) && from.Before(*a.ScheduledEndTime) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, model.CompareScheduled)
	return out, nil
}

func (m *Memory) ListAppointments(_ context.Context, f Filter) ([]model.Appointment, error) {
	f = f.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Appointment
	for _, a := range m.appts {
		if matches(a, f) {
			out = append(out, a)
		}
	}
	switch {
	case f.Scheduled == nil:
		slices.SortFunc(out, func(a, b model.Appointment) int { return cmp.Compare(a.ID, b.ID) })
	case *f.Scheduled:
		slices.SortFunc(out, model.CompareScheduled)
	default:
		model.SortQueue(out)
	}

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(a model.Appointment, f Filter) bool {
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.OrganizationID != "" && a.OrganizationID != f.OrganizationID {
		return false
	}
	if len(f.CategoryIDs) > 0 && !slices.Contains(f.CategoryIDs, a.CategoryID) {
		return false
	}
	if f.Scheduled != nil && a.IsScheduled != *f.Scheduled {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	return true
}

func (m *Memory) FindActive(_ context.Context, userID, organizationID, categoryID string) (model.Appointment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.appts {
		if a.UserID == userID && a.OrganizationID == organizationID && a.CategoryID == categoryID && a.Status == model.StatusActive {
			return a, true, nil
		}
	}
	return model.Appointment{}, false, nil
}

func (m *Memory) DeactivateCategory(ctx context.Context, categoryID string) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc().UTC()
	by := actor.From(ctx)
	var out []model.Appointment
	for id, a := range m.appts {
		if a.CategoryID == categoryID && a.Status == model.StatusActive {
			a.Status = model.StatusInactive
			a.UpdatedAt = now
			a.UpdatedBy = by
			m.appts[id] = a
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}
