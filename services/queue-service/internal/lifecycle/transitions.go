package lifecycle

import (
	"fmt"
	"slices"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
)

type Event string

const (
	EventCheckIn    Event = "checkin"
	EventCancel     Event = "cancel"
	EventDeactivate Event = "deactivate"
	EventActivate   Event = "activate"
)

type transition struct {
	from []model.Status
	to   model.Status
}

var transitions = map[Event]transition{
	EventCheckIn:    {from: []model.Status{model.StatusActive}, to: model.StatusCheckin},
	EventCancel:     {from: []model.Status{model.StatusActive, model.StatusInactive}, to: model.StatusCancel},
	EventDeactivate: {from: []model.Status{model.StatusActive}, to: model.StatusInactive},
	EventActivate:   {from: []model.Status{model.StatusInactive}, to: model.StatusActive},
}

// Next returns the status reached from `from` on ev.
func Next(from model.Status, ev Event) (model.Status, error) {
	t, ok := transitions[ev]
	if !ok || !slices.Contains(t.from, from) {
		return "", fmt.Errorf("%w: %s from %s", apperr.ErrInvalidTransition, ev, from)
	}
	return t.to, nil
}

// apply moves a through ev, additionally rejecting check-in of scheduled
// appointments.
func apply(a *model.Appointment, ev Event) error {
	if ev == EventCheckIn && a.IsScheduled {
		return fmt.Errorf("%w: scheduled appointments do not check in", apperr.ErrInvalidTransition)
	}
	to, err := Next(a.Status, ev)
	if err != nil {
		return err
	}
	a.Status = to
	return nil
}
