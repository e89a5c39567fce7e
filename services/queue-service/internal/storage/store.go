// Package storage persists appointments and reads organizations and
// categories for the queue-service engines.
//
// Every Store method that mutates is atomic: it either applies completely or
// leaves the store unchanged.
package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/actor"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
)

type Store interface {
	// CreateAppointment assigns ID, DateCreated and UpdatedAt. A scheduled
	// appointment overlapping a non-cancelled booking of the same category
	// fails with apperr.ErrSlotNotAvailable.
	CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	// UpdateAppointment writes Status and Counter of a if the stored status
	// is still from, and fails with apperr.ErrStaleAppointment otherwise.
	UpdateAppointment(ctx context.Context, a model.Appointment, from model.Status) (model.Appointment, error)
	// UpdateCounters rewrites counters of several appointments at once.
	UpdateCounters(ctx context.Context, counters map[int64]model.Counter) error
	// ListPartition returns the queued (active or inactive) unscheduled
	// appointments of a partition in queue order.
	ListPartition(ctx context.Context, p model.PartitionKey) ([]model.Appointment, error)
	// ListBooked returns the non-cancelled scheduled appointments of a
	// category overlapping [from, to), by start time.
	ListBooked(ctx context.Context, categoryID string, from, to time.Time) ([]model.Appointment, error)
	ListAppointments(ctx context.Context, f Filter) ([]model.Appointment, error)
	// FindActive returns an active appointment of user in the given
	// organization and category, if any.
	FindActive(ctx context.Context, userID, organizationID, categoryID string) (model.Appointment, bool, error)
	// DeactivateCategory moves every active appointment of the category to
	// inactive and returns the affected rows.
	DeactivateCategory(ctx context.Context, categoryID string) ([]model.Appointment, error)
}

type Directory interface {
	GetOrganization(ctx context.Context, id string) (model.Organization, error)
	GetCategory(ctx context.Context, id string) (model.Category, error)
	// SetCategoryStatus mirrors a status change published by the catalog.
	SetCategoryStatus(ctx context.Context, id string, status model.EntityStatus) error
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Filter selects appointments for listings. Zero fields match everything.
type Filter struct {
	UserID         string
	OrganizationID string
	CategoryIDs    []string
	Scheduled      *bool
	Statuses       []model.Status
	Limit          int
	Offset         int
}

// Normalize clamps paging to [1, MaxLimit] and a non-negative offset.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

var (
	_ Store     = (*Memory)(nil)
	_ Directory = (*Memory)(nil)
	_ Store     = (*Postgres)(nil)
	_ Directory = (*Postgres)(nil)
)

// withAuthors fills CreatedBy and UpdatedBy of a new appointment.
func withAuthors(a model.Appointment) model.Appointment {
	if a.CreatedBy == "" {
		a.CreatedBy = actor.System
	}
	if a.UpdatedBy == "" {
		a.UpdatedBy = a.CreatedBy
	}
	return a
}
