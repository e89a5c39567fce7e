// Package lifecycle owns the appointment state machine and dispatches
// creation and transitions to the queue and availability engines.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/availability"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/queue"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/storage"
)

type Service struct {
	store  storage.Store
	dir    storage.Directory
	queue  *queue.Engine
	slots  *availability.Engine
	logger *slog.Logger
	tracer trace.Tracer
}

func NewService(store storage.Store, dir storage.Directory, q *queue.Engine, slots *availability.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		dir:    dir,
		queue:  q,
		slots:  slots,
		logger: logger,
		tracer: otel.Tracer("queue-service/lifecycle"),
	}
}

type CreateRequest struct {
	OrganizationID string
	CategoryID     string
	UserID         string
	// Start is required for scheduled categories and ignored otherwise.
	Start time.Time
}

// Create validates the organization and category, then appends to the queue
// or reserves a slot depending on the category.
func (s *Service) Create(ctx context.Context, req CreateRequest) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "appointment.create",
		attribute.String("organization_id", req.OrganizationID),
		attribute.String("category_id", req.CategoryID))
	defer func() { end(span, err) }()

	org, err := s.dir.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		return model.Appointment{}, err
	}
	cat, err := s.dir.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return model.Appointment{}, err
	}
	if cat.OrganizationID != org.ID {
		return model.Appointment{}, apperr.ErrCategoryMismatch
	}
	if org.Status != model.EntityActive {
		return model.Appointment{}, apperr.ErrOrganizationInactive
	}
	if cat.Status != model.EntityActive {
		return model.Appointment{}, apperr.ErrCategoryInactive
	}
	// Checked once up front to fail fast, then again under the engine's lock.
	check := func(ctx context.Context) error {
		return s.admissible(ctx, cat.ID, req.UserID, org.ID)
	}
	if err := check(ctx); err != nil {
		return model.Appointment{}, err
	}

	if !cat.IsScheduled {
		appt, err = s.queue.Append(ctx, queue.AppendRequest{
			OrganizationID: org.ID,
			CategoryID:     cat.ID,
			UserID:         req.UserID,
			Check:          check,
		})
	} else {
		if req.Start.IsZero() {
			return model.Appointment{}, fmt.Errorf("%w: scheduled time is required", apperr.ErrSlotOutOfRange)
		}
		appt, err = s.slots.Reserve(ctx, availability.ReserveRequest{
			Category:       cat,
			OrganizationID: org.ID,
			UserID:         req.UserID,
			Start:          req.Start,
			Check:          check,
		})
	}
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment created",
		"appointment_id", appt.ID, "organization_id", org.ID, "category_id", cat.ID, "scheduled", appt.IsScheduled)
	return appt, nil
}

// admissible reports whether userID may take a new appointment in the
// category: it must still be active and the user must hold no active
// appointment there.
func (s *Service) admissible(ctx context.Context, categoryID, userID, organizationID string) error {
	cat, err := s.dir.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if cat.Status != model.EntityActive {
		return apperr.ErrCategoryInactive
	}
	if _, found, err := s.store.FindActive(ctx, userID, organizationID, categoryID); err != nil {
		return err
	} else if found {
		return apperr.ErrDuplicateAppointment
	}
	return nil
}

// CheckIn marks an active unscheduled appointment as served.
func (s *Service) CheckIn(ctx context.Context, id int64) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "appointment.checkin", attribute.Int64("appointment_id", id))
	defer func() { end(span, err) }()

	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if a.IsScheduled {
		return model.Appointment{}, fmt.Errorf("%w: scheduled appointments do not check in", apperr.ErrInvalidTransition)
	}
	return s.queue.Update(ctx, id, func(a *model.Appointment, _ []model.Appointment) error {
		return apply(a, EventCheckIn)
	})
}

// Cancel ends an active or inactive appointment. A cancelled scheduled
// appointment releases its slot immediately.
func (s *Service) Cancel(ctx context.Context, id int64) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "appointment.cancel", attribute.Int64("appointment_id", id))
	defer func() { end(span, err) }()

	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !a.IsScheduled {
		return s.queue.Update(ctx, id, func(a *model.Appointment, _ []model.Appointment) error {
			return apply(a, EventCancel)
		})
	}
	cat, err := s.dir.GetCategory(ctx, a.CategoryID)
	if err != nil {
		return model.Appointment{}, err
	}
	return s.slots.Update(ctx, cat, id, func(a *model.Appointment) error {
		return apply(a, EventCancel)
	})
}

// Activate returns an inactive appointment to active. Unscheduled
// appointments rejoin at the end of their queue.
func (s *Service) Activate(ctx context.Context, id int64) (appt model.Appointment, err error) {
	ctx, span := s.start(ctx, "appointment.activate", attribute.Int64("appointment_id", id))
	defer func() { end(span, err) }()

	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !a.IsScheduled {
		return s.queue.Activate(ctx, id)
	}
	cat, err := s.dir.GetCategory(ctx, a.CategoryID)
	if err != nil {
		return model.Appointment{}, err
	}
	return s.slots.Update(ctx, cat, id, func(a *model.Appointment) error {
		if a.Status != model.StatusInactive {
			return fmt.Errorf("%w: appointment %d is %s", apperr.ErrInvalidState, a.ID, a.Status)
		}
		return apply(a, EventActivate)
	})
}

// Move repositions an unscheduled appointment right after prev, or first
// when prev is nil.
func (s *Service) Move(ctx context.Context, id int64, prev *int64) (appt model.Appointment, err error) {
	attrs := []attribute.KeyValue{attribute.Int64("appointment_id", id)}
	if prev != nil {
		attrs = append(attrs, attribute.Int64("previous_appointment_id", *prev))
	}
	ctx, span := s.start(ctx, "appointment.move", attrs...)
	defer func() { end(span, err) }()

	return s.queue.Move(ctx, id, prev)
}

// DeactivateCategory moves every active appointment of the category to
// inactive, as happens when the category itself is deactivated.
func (s *Service) DeactivateCategory(ctx context.Context, categoryID string) (changed []model.Appointment, err error) {
	ctx, span := s.start(ctx, "category.deactivate", attribute.String("category_id", categoryID))
	defer func() { end(span, err) }()

	cat, err := s.dir.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if cat.IsScheduled {
		changed, err = s.slots.Deactivate(ctx, cat)
	} else {
		changed, err = s.queue.Deactivate(ctx, model.PartitionKey{OrganizationID: cat.OrganizationID, CategoryID: cat.ID})
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("category appointments deactivated", "category_id", categoryID, "count", len(changed))
	return changed, nil
}

// SetCategoryStatus records a category status change. Switching a category
// off also deactivates its active appointments, which are returned.
func (s *Service) SetCategoryStatus(ctx context.Context, categoryID string, status model.EntityStatus) ([]model.Appointment, error) {
	if _, err := model.ParseEntityStatus(string(status)); err != nil {
		return nil, apperr.New(apperr.ErrValidation, "category: "+err.Error())
	}
	if err := s.dir.SetCategoryStatus(ctx, categoryID, status); err != nil {
		return nil, err
	}
	if status == model.EntityActive {
		return nil, nil
	}
	return s.DeactivateCategory(ctx, categoryID)
}

func (s *Service) Get(ctx context.Context, id int64) (model.Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) List(ctx context.Context, f storage.Filter) ([]model.Appointment, error) {
	return s.store.ListAppointments(ctx, f)
}

// Queue lists a partition in queue order.
func (s *Service) Queue(ctx context.Context, key model.PartitionKey, statuses ...model.Status) ([]model.Appointment, error) {
	return s.queue.List(ctx, key, statuses...)
}

// Slots returns the slot grid of a category for the day of date.
func (s *Service) Slots(ctx context.Context, categoryID string, date time.Time) (availability.Day, error) {
	cat, err := s.dir.GetCategory(ctx, categoryID)
	if err != nil {
		return availability.Day{}, err
	}
	return s.slots.SlotsFor(ctx, cat, date)
}

// Category exposes the directory lookup to the transport layer.
func (s *Service) Category(ctx context.Context, id string) (model.Category, error) {
	return s.dir.GetCategory(ctx, id)
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
