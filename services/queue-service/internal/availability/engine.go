// Package availability turns a category's weekly hours and its bookings into
// free and taken slots, and reserves slots without double booking.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/actor"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/locks"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/schedule"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/storage"
)

var errNoInterval = apperr.New(apperr.ErrValidation, "category has no appointment interval")

type Engine struct {
	store  storage.Store
	locker locks.Locker
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(store storage.Store, locker locks.Locker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, locker: locker, logger: logger, now: time.Now}
}

// WithClock replaces the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Day is the slot grid of one calendar day in the category zone.
type Day struct {
	Date           string `json:"date"`
	Slots          []Slot `json:"slots"`
	AvailableCount int    `json:"available_count"`
}

// SlotsFor lists every slot of the calendar day of date (in the category
// zone) with its occupancy. It reads without taking the slot lock.
func (e *Engine) SlotsFor(ctx context.Context, cat model.Category, date time.Time) (Day, error) {
	if !cat.IsScheduled {
		return Day{}, apperr.ErrCategoryNotScheduled
	}
	if cat.Interval <= 0 {
		return Day{}, errNoInterval
	}
	loc := cat.Location()
	day := schedule.Midnight(date, loc)
	if cat.Hours.Closed() {
		return Day{Date: day.Format(schedule.DateLayout), Slots: []Slot{}}, nil
	}

	busy, err := e.busy(ctx, cat.ID, day)
	if err != nil {
		return Day{}, err
	}
	slots := Slots(schedule.WindowsFor(cat.Hours, day, loc), cat.Interval, busy)
	return Day{Date: day.Format(schedule.DateLayout), Slots: slots, AvailableCount: Available(slots)}, nil
}

type ReserveRequest struct {
	Category       model.Category
	OrganizationID string
	UserID         string
	Start          time.Time
	// Check, when set, runs inside the slot's critical section before the
	// appointment is written. A non-nil error aborts the reservation.
	Check func(ctx context.Context) error
}

// Reserve books the slot starting at req.Start. Start must be the start of a
// generated slot on a day within [today, today+MaxAdvanceDays] in the
// category zone, and must not lie in the past.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (model.Appointment, error) {
	cat := req.Category
	if !cat.IsScheduled {
		return model.Appointment{}, apperr.ErrCategoryNotScheduled
	}
	if cat.Interval <= 0 {
		return model.Appointment{}, errNoInterval
	}

	loc := cat.Location()
	now := e.now()
	day := schedule.Midnight(req.Start, loc)
	today := schedule.Midnight(now, loc)
	if day.Before(today) || day.After(today.AddDate(0, 0, cat.MaxAdvanceDays)) {
		return model.Appointment{}, fmt.Errorf("%w: %s is outside the booking window", apperr.ErrSlotOutOfRange, day.Format(schedule.DateLayout))
	}
	if req.Start.Before(now) {
		return model.Appointment{}, fmt.Errorf("%w: slot has already started", apperr.ErrSlotOutOfRange)
	}
	if !aligned(Slots(schedule.WindowsFor(cat.Hours, day, loc), cat.Interval, nil), req.Start) {
		return model.Appointment{}, fmt.Errorf("%w: %s is not a slot start", apperr.ErrSlotOutOfRange, req.Start.In(loc).Format("15:04"))
	}

	unlock, err := e.locker.Lock(ctx, locks.SlotKey(cat.ID, day))
	if err != nil {
		return model.Appointment{}, err
	}
	defer unlock()

	if req.Check != nil {
		if err := req.Check(ctx); err != nil {
			return model.Appointment{}, err
		}
	}
	start := req.Start.UTC()
	end := start.Add(cat.Interval)
	busy, err := e.busy(ctx, cat.ID, day)
	if err != nil {
		return model.Appointment{}, err
	}
	if overlapsAny(start, end, busy) {
		return model.Appointment{}, apperr.ErrSlotNotAvailable
	}

	appt, err := e.store.CreateAppointment(ctx, model.Appointment{
		OrganizationID:   req.OrganizationID,
		CategoryID:       cat.ID,
		UserID:           req.UserID,
		IsScheduled:      true,
		Status:           model.StatusActive,
		ScheduledTime:    &start,
		ScheduledEndTime: &end,
		CreatedBy:        actor.From(ctx),
		UpdatedBy:        actor.From(ctx),
	})
	if err != nil {
		return model.Appointment{}, err
	}
	e.logger.Debug("slot reserved", "category_id", cat.ID, "appointment_id", appt.ID, "start", start)
	return appt, nil
}

// Update applies fn to scheduled appointment id inside the critical section
// of its booking day and persists Status and Counter.
func (e *Engine) Update(ctx context.Context, cat model.Category, id int64, fn func(a *model.Appointment) error) (model.Appointment, error) {
	a, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !a.IsScheduled || a.ScheduledTime == nil {
		return model.Appointment{}, apperr.ErrCategoryNotScheduled
	}

	unlock, err := e.locker.Lock(ctx, locks.SlotKey(cat.ID, schedule.Midnight(*a.ScheduledTime, cat.Location())))
	if err != nil {
		return model.Appointment{}, err
	}
	defer unlock()

	if a, err = e.store.GetAppointment(ctx, id); err != nil {
		return model.Appointment{}, err
	}
	from := a.Status
	if err := fn(&a); err != nil {
		return model.Appointment{}, err
	}
	a.UpdatedBy = actor.From(ctx)
	return e.store.UpdateAppointment(ctx, a, from)
}

// Deactivate runs the category-wide switch to inactive while holding the
// critical section of every bookable day, so no reservation can interleave
// with it. Days are locked in ascending order.
func (e *Engine) Deactivate(ctx context.Context, cat model.Category) ([]model.Appointment, error) {
	loc := cat.Location()
	// One day of slack on each side covers a midnight passing between the
	// caller's clock and a concurrent Reserve.
	first := schedule.Midnight(e.now(), loc).AddDate(0, 0, -1)
	for i := 0; i <= cat.MaxAdvanceDays+2; i++ {
		unlock, err := e.locker.Lock(ctx, locks.SlotKey(cat.ID, first.AddDate(0, 0, i)))
		if err != nil {
			return nil, err
		}
		defer unlock()
	}
	return e.store.DeactivateCategory(ctx, cat.ID)
}

func (e *Engine) busy(ctx context.Context, categoryID string, day time.Time) ([]schedule.Interval, error) {
	next := day.AddDate(0, 0, 1)
	booked, err := e.store.ListBooked(ctx, categoryID, day, next)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]schedule.Interval, 0, len(booked))
	for _, b := range booked {
		out = append(out, schedule.Interval{Start: *b.ScheduledTime, End: *b.ScheduledEndTime})
	}
	return out, nil
}

func aligned(slots []Slot, start time.Time) bool {
	for _, s := range slots {
		if s.Start.Equal(start) {
			return true
		}
	}
	return false
}
