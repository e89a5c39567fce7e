// Package outbox records domain events next to the data that produced them
// and relays them to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
)

// The Kafka topic of an event equals its type.
const (
	AppointmentCreated     = "appointment.created.v1"
	AppointmentMoved       = "appointment.moved.v1"
	AppointmentCancelled   = "appointment.cancelled.v1"
	AppointmentCheckedIn   = "appointment.checked_in.v1"
	AppointmentActivated   = "appointment.activated.v1"
	AppointmentDeactivated = "appointment.deactivated.v1"
)

type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Writer stores events for later publication.
type Writer interface {
	Write(ctx context.Context, evt Event) error
}

type appointmentPayload struct {
	AppointmentID    int64      `json:"appointment_id"`
	OrganizationID   string     `json:"organization_id"`
	CategoryID       string     `json:"category_id"`
	UserID           string     `json:"user_id"`
	IsScheduled      bool       `json:"is_scheduled"`
	Status           string     `json:"status"`
	Counter          string     `json:"counter,omitempty"`
	ScheduledTime    *time.Time `json:"scheduled_time,omitempty"`
	ScheduledEndTime *time.Time `json:"scheduled_end_time,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// AppointmentEvent snapshots a into an event of the given type.
func AppointmentEvent(eventType string, a model.Appointment) (Event, error) {
	p := appointmentPayload{
		AppointmentID:    a.ID,
		OrganizationID:   a.OrganizationID,
		CategoryID:       a.CategoryID,
		UserID:           a.UserID,
		IsScheduled:      a.IsScheduled,
		Status:           string(a.Status),
		ScheduledTime:    a.ScheduledTime,
		ScheduledEndTime: a.ScheduledEndTime,
		OccurredAt:       time.Now().UTC(),
	}
	if !a.IsScheduled {
		p.Counter = a.Counter.String()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: "appointment",
		AggregateID:   strconv.FormatInt(a.ID, 10),
		EventType:     eventType,
		Payload:       body,
	}, nil
}
