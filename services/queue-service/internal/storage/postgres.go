package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/sqip/libs/db"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/actor"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
)

// Postgres is the pgx-backed Store and Directory.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const appointmentColumns = `id, organization_id, category_id, user_id, is_scheduled, status, counter::text,
	scheduled_time, scheduled_end_time, date_created, updated_at, created_by, updated_by`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status, counter string
	if err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.CategoryID,
		&a.UserID,
		&a.IsScheduled,
		&status,
		&counter,
		&a.ScheduledTime,
		&a.ScheduledEndTime,
		&a.DateCreated,
		&a.UpdatedAt,
		&a.CreatedBy,
		&a.UpdatedBy,
	); err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	c, err := model.ParseCounter(counter)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %d counter: %w", a.ID, err)
	}
	a.Counter = c
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (p *Postgres) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	a = withAuthors(a)
	row := p.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(organization_id, category_id, user_id, is_scheduled, status, counter, scheduled_time, scheduled_end_time,
			 created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
		RETURNING `+appointmentColumns,
		a.OrganizationID, a.CategoryID, a.UserID, a.IsScheduled, string(a.Status), a.Counter.String(),
		a.ScheduledTime, a.ScheduledEndTime, a.CreatedBy, a.UpdatedBy)
	created, err := scanAppointment(row)
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, apperr.ErrSlotNotAvailable
		}
		return model.Appointment{}, err
	}
	return created, nil
}

func (p *Postgres) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	a, err := scanAppointment(p.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if IsNotFound(err) {
		return model.Appointment{}, apperr.NotFound("appointment", id)
	}
	return a, err
}

func (p *Postgres) UpdateAppointment(ctx context.Context, a model.Appointment, from model.Status) (model.Appointment, error) {
	updated, err := scanAppointment(p.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			counter = $3::numeric,
			updated_by = $5,
			updated_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+appointmentColumns,
		a.ID, string(a.Status), a.Counter.String(), string(from), a.UpdatedBy))
	if IsNotFound(err) {
		// Either the row is gone or its status moved on since it was read.
		cur, getErr := p.GetAppointment(ctx, a.ID)
		if getErr != nil {
			return model.Appointment{}, getErr
		}
		return model.Appointment{}, fmt.Errorf("%w: appointment %d is %s, expected %s", apperr.ErrStaleAppointment, a.ID, cur.Status, from)
	}
	return updated, err
}

func (p *Postgres) UpdateCounters(ctx context.Context, counters map[int64]model.Counter) error {
	if len(counters) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(counters))
	values := make([]string, 0, len(counters))
	for id, c := range counters {
		ids = append(ids, id)
		values = append(values, c.String())
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments AS a
		SET counter = v.counter::numeric,
			updated_at = now()
		FROM unnest($1::bigint[], $2::text[]) AS v(id, counter)
		WHERE a.id = v.id
	`, ids, values)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("%w: %d of %d appointments", apperr.ErrNotFound, tag.RowsAffected(), len(ids))
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ListPartition(ctx context.Context, key model.PartitionKey) ([]model.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
			AND category_id = $2
			AND NOT is_scheduled
			AND status IN ('active', 'inactive')
		ORDER BY counter ASC, id ASC
	`, key.OrganizationID, key.CategoryID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (p *Postgres) ListBooked(ctx context.Context, categoryID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE category_id = $1
			AND is_scheduled
			AND status <> 'cancel'
			AND scheduled_time < $3
			AND scheduled_end_time > $2
		ORDER BY scheduled_time ASC, id ASC
	`, categoryID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (p *Postgres) ListAppointments(ctx context.Context, f Filter) ([]model.Appointment, error) {
	f = f.Normalize()
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.OrganizationID != "" {
		where = append(where, "organization_id = "+arg(f.OrganizationID))
	}
	if len(f.CategoryIDs) > 0 {
		where = append(where, "category_id = ANY("+arg(f.CategoryIDs)+"::text[])")
	}
	if f.Scheduled != nil {
		where = append(where, "is_scheduled = "+arg(*f.Scheduled))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(statuses)+"::text[])")
	}

	q := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	switch {
	case f.Scheduled == nil:
		q += " ORDER BY id ASC"
	case *f.Scheduled:
		q += " ORDER BY scheduled_time ASC, id ASC"
	default:
		q += " ORDER BY counter ASC, id ASC"
	}
	q += " LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (p *Postgres) FindActive(ctx context.Context, userID, organizationID, categoryID string) (model.Appointment, bool, error) {
	a, err := scanAppointment(p.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1 AND organization_id = $2 AND category_id = $3 AND status = 'active'
		ORDER BY id
		LIMIT 1
	`, userID, organizationID, categoryID))
	if IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

func (p *Postgres) DeactivateCategory(ctx context.Context, categoryID string) ([]model.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'inactive',
			updated_by = $2,
			updated_at = now()
		WHERE category_id = $1 AND status = 'active'
		RETURNING `+appointmentColumns,
		categoryID, actor.From(ctx))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (p *Postgres) GetOrganization(ctx context.Context, id string) (model.Organization, error) {
	var o model.Organization
	var status string
	err := p.pool.QueryRow(ctx, `SELECT id, name, status FROM organizations WHERE id = $1`, id).Scan(&o.ID, &o.Name, &status)
	if IsNotFound(err) {
		return model.Organization{}, apperr.NotFound("organization", id)
	}
	if err != nil {
		return model.Organization{}, err
	}
	o.Status = model.EntityStatus(status)
	return o, nil
}

func (p *Postgres) GetCategory(ctx context.Context, id string) (model.Category, error) {
	var (
		c        model.Category
		status   string
		hours    []byte
		interval int
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, status, is_scheduled, time_zone, hours, interval_minutes, max_advance_days
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.OrganizationID, &c.Name, &status, &c.IsScheduled, &c.TimeZone, &hours, &interval, &c.MaxAdvanceDays)
	if IsNotFound(err) {
		return model.Category{}, apperr.NotFound("category", id)
	}
	if err != nil {
		return model.Category{}, err
	}
	c.Status = model.EntityStatus(status)
	c.Interval = time.Duration(interval) * time.Minute
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &c.Hours); err != nil {
			return model.Category{}, fmt.Errorf("category %s hours: %w", id, err)
		}
	}
	return c, nil
}

func (p *Postgres) SetCategoryStatus(ctx context.Context, id string, status model.EntityStatus) error {
	tag, err := p.pool.Exec(ctx, `UPDATE categories SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("category", id)
	}
	return nil
}

// IsConflict reports an exclusion-constraint violation (overlapping booking).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
