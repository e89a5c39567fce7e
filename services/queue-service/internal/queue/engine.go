// Package queue keeps the strict order of unscheduled appointments within each
// (organization, category) partition.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/actor"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/locks"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/storage"
)

type Engine struct {
	store  storage.Store
	locker locks.Locker
	logger *slog.Logger
}

func NewEngine(store storage.Store, locker locks.Locker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, locker: locker, logger: logger}
}

type AppendRequest struct {
	OrganizationID string
	CategoryID     string
	UserID         string
	// Check, when set, runs inside the partition's critical section before
	// the appointment is written. A non-nil error aborts the append.
	Check func(ctx context.Context) error
}

// Append adds a new active appointment at the end of the partition.
func (e *Engine) Append(ctx context.Context, req AppendRequest) (model.Appointment, error) {
	key := model.PartitionKey{OrganizationID: req.OrganizationID, CategoryID: req.CategoryID}
	unlock, err := e.locker.Lock(ctx, locks.QueueKey(key))
	if err != nil {
		return model.Appointment{}, err
	}
	defer unlock()

	if req.Check != nil {
		if err := req.Check(ctx); err != nil {
			return model.Appointment{}, err
		}
	}
	members, err := e.store.ListPartition(ctx, key)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("list partition: %w", err)
	}
	return e.store.CreateAppointment(ctx, model.Appointment{
		OrganizationID: req.OrganizationID,
		CategoryID:     req.CategoryID,
		UserID:         req.UserID,
		Status:         model.StatusActive,
		Counter:        Next(members),
		CreatedBy:      actor.From(ctx),
		UpdatedBy:      actor.From(ctx),
	})
}

// Deactivate moves every active appointment of the partition to inactive
// while holding the partition's critical section.
func (e *Engine) Deactivate(ctx context.Context, key model.PartitionKey) ([]model.Appointment, error) {
	unlock, err := e.locker.Lock(ctx, locks.QueueKey(key))
	if err != nil {
		return nil, err
	}
	defer unlock()
	return e.store.DeactivateCategory(ctx, key.CategoryID)
}

// Move places appointment id immediately after prev, or first when prev is
// nil. Only the moved appointment's counter changes unless the gap between its
// new neighbours is exhausted, in which case the partition is renumbered.
func (e *Engine) Move(ctx context.Context, id int64, prev *int64) (model.Appointment, error) {
	var moved model.Appointment
	err := e.withPartition(ctx, id, func(x model.Appointment, members []model.Appointment) error {
		if !x.Status.Queued() {
			return fmt.Errorf("%w: appointment %d is %s", apperr.ErrInvalidState, x.ID, x.Status)
		}
		if prev != nil && *prev == x.ID {
			return apperr.ErrSamePosition
		}

		others := slices.DeleteFunc(slices.Clone(members), func(a model.Appointment) bool { return a.ID == x.ID })
		at := 0 // insert position in others
		if prev != nil {
			p := slices.IndexFunc(others, func(a model.Appointment) bool { return a.ID == *prev })
			if p < 0 {
				return e.targetError(ctx, x, *prev)
			}
			if others[p].Status != model.StatusActive {
				return apperr.ErrInvalidTarget
			}
			at = p + 1
		}

		cur := slices.IndexFunc(members, func(a model.Appointment) bool { return a.ID == x.ID })
		if cur == at {
			return apperr.ErrSamePosition
		}

		counters := map[int64]model.Counter{}
		c, ok := slot(others, at)
		if !ok {
			counters = Renumber(members)
			renumbered := make([]model.Appointment, len(others))
			for i, a := range others {
				a.Counter = counters[a.ID]
				renumbered[i] = a
			}
			if c, ok = slot(renumbered, at); !ok {
				return fmt.Errorf("move %d: no counter after renumbering", x.ID)
			}
			e.logger.Info("queue partition renumbered",
				"organization_id", x.OrganizationID, "category_id", x.CategoryID, "size", len(members))
		}
		counters[x.ID] = c

		if err := e.store.UpdateCounters(ctx, counters); err != nil {
			return fmt.Errorf("move %d: %w", x.ID, err)
		}
		x.Counter = c
		moved = x
		return nil
	})
	return moved, err
}

// targetError explains why prev is not a queued member of x's partition.
func (e *Engine) targetError(ctx context.Context, x model.Appointment, prev int64) error {
	p, err := e.store.GetAppointment(ctx, prev)
	if err != nil {
		return err
	}
	if p.IsScheduled || p.Partition() != x.Partition() {
		return apperr.NotFound("appointment in partition", prev)
	}
	return apperr.ErrInvalidTarget
}

// slot returns the counter for inserting at position at of ordered.
func slot(ordered []model.Appointment, at int) (model.Counter, bool) {
	switch {
	case len(ordered) == 0:
		return BaseCounter, true
	case at == 0:
		return Before(ordered[0].Counter), true
	case at >= len(ordered):
		return After(ordered[len(ordered)-1].Counter), true
	default:
		return Between(ordered[at-1].Counter, ordered[at].Counter)
	}
}

// Activate returns an inactive appointment to active at the end of its
// partition.
func (e *Engine) Activate(ctx context.Context, id int64) (model.Appointment, error) {
	return e.Update(ctx, id, func(a *model.Appointment, members []model.Appointment) error {
		if a.Status != model.StatusInactive {
			return fmt.Errorf("%w: appointment %d is %s", apperr.ErrInvalidState, a.ID, a.Status)
		}
		a.Status = model.StatusActive
		a.Counter = Next(members)
		return nil
	})
}

// Update applies fn to appointment id inside its partition's critical section
// and persists Status and Counter. fn sees the freshly loaded appointment and
// the queued members of the partition in order.
func (e *Engine) Update(ctx context.Context, id int64, fn func(a *model.Appointment, members []model.Appointment) error) (model.Appointment, error) {
	var out model.Appointment
	err := e.withPartition(ctx, id, func(a model.Appointment, members []model.Appointment) error {
		from := a.Status
		if err := fn(&a, members); err != nil {
			return err
		}
		a.UpdatedBy = actor.From(ctx)
		updated, err := e.store.UpdateAppointment(ctx, a, from)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	return out, err
}

func (e *Engine) withPartition(ctx context.Context, id int64, fn func(a model.Appointment, members []model.Appointment) error) error {
	a, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if a.IsScheduled {
		return apperr.ErrCategoryScheduled
	}

	unlock, err := e.locker.Lock(ctx, locks.QueueKey(a.Partition()))
	if err != nil {
		return err
	}
	defer unlock()

	// Reload: the appointment may have changed before the lock was granted.
	if a, err = e.store.GetAppointment(ctx, id); err != nil {
		return err
	}
	members, err := e.store.ListPartition(ctx, a.Partition())
	if err != nil {
		return fmt.Errorf("list partition: %w", err)
	}
	return fn(a, members)
}

// List returns the partition in queue order, optionally restricted to statuses.
func (e *Engine) List(ctx context.Context, key model.PartitionKey, statuses ...model.Status) ([]model.Appointment, error) {
	members, err := e.store.ListPartition(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return members, nil
	}
	return slices.DeleteFunc(members, func(a model.Appointment) bool {
		return !slices.Contains(statuses, a.Status)
	}), nil
}
