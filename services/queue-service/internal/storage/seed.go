package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/schedule"
)

// Seed is a directory snapshot loaded at startup.
type Seed struct {
	Organizations []model.Organization
	Categories    []model.Category
}

type seedFile struct {
	Organizations []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"organizations"`
	Categories []struct {
		ID              string         `json:"id"`
		OrganizationID  string         `json:"organization_id"`
		Name            string         `json:"name"`
		Status          string         `json:"status"`
		IsScheduled     bool           `json:"is_scheduled"`
		TimeZone        string         `json:"time_zone"`
		Hours           schedule.Hours `json:"hours"`
		IntervalMinutes int            `json:"interval_minutes"`
		MaxAdvanceDays  int            `json:"max_advance_days"`
	} `json:"categories"`
}

// ReadSeed decodes and validates a seed document. Statuses default to active.
func ReadSeed(r io.Reader) (Seed, error) {
	var f seedFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}

	var s Seed
	orgs := map[string]bool{}
	for _, o := range f.Organizations {
		if o.ID == "" {
			return Seed{}, fmt.Errorf("seed: organization without id")
		}
		status, err := entityStatus(o.Status)
		if err != nil {
			return Seed{}, fmt.Errorf("seed: organization %s: %w", o.ID, err)
		}
		orgs[o.ID] = true
		s.Organizations = append(s.Organizations, model.Organization{ID: o.ID, Name: o.Name, Status: status})
	}
	for _, c := range f.Categories {
		if c.ID == "" || !orgs[c.OrganizationID] {
			return Seed{}, fmt.Errorf("seed: category %q needs a known organization", c.ID)
		}
		status, err := entityStatus(c.Status)
		if err != nil {
			return Seed{}, fmt.Errorf("seed: category %s: %w", c.ID, err)
		}
		if err := schedule.Validate(c.Hours); err != nil {
			return Seed{}, fmt.Errorf("seed: category %s: %w", c.ID, err)
		}
		if c.TimeZone != "" {
			if _, err := time.LoadLocation(c.TimeZone); err != nil {
				return Seed{}, fmt.Errorf("seed: category %s: %w", c.ID, err)
			}
		}
		if c.IsScheduled && c.IntervalMinutes <= 0 {
			return Seed{}, fmt.Errorf("seed: scheduled category %s needs interval_minutes", c.ID)
		}
		s.Categories = append(s.Categories, model.Category{
			ID:             c.ID,
			OrganizationID: c.OrganizationID,
			Name:           c.Name,
			Status:         status,
			IsScheduled:    c.IsScheduled,
			TimeZone:       c.TimeZone,
			Hours:          c.Hours,
			Interval:       time.Duration(c.IntervalMinutes) * time.Minute,
			MaxAdvanceDays: c.MaxAdvanceDays,
		})
	}
	return s, nil
}

func entityStatus(s string) (model.EntityStatus, error) {
	if s == "" {
		return model.EntityActive, nil
	}
	return model.ParseEntityStatus(s)
}

func (m *Memory) ApplySeed(_ context.Context, s Seed) error {
	for _, o := range s.Organizations {
		m.PutOrganization(o)
	}
	for _, c := range s.Categories {
		m.PutCategory(c)
	}
	return nil
}

// ApplySeed upserts the directory in one transaction.
func (p *Postgres) ApplySeed(ctx context.Context, s Seed) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, o := range s.Organizations {
			if _, err := tx.Exec(ctx, `
				INSERT INTO organizations (id, name, status) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status
			`, o.ID, o.Name, string(o.Status)); err != nil {
				return fmt.Errorf("seed organization %s: %w", o.ID, err)
			}
		}
		for _, c := range s.Categories {
			hours, err := json.Marshal(c.Hours)
			if err != nil {
				return err
			}
			interval := int(c.Interval / time.Minute)
			if interval <= 0 {
				interval = 15
			}
			tz := c.TimeZone
			if tz == "" {
				tz = "UTC"
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO categories (id, organization_id, name, status, is_scheduled, time_zone, hours, interval_minutes, max_advance_days)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO UPDATE SET
					organization_id = EXCLUDED.organization_id,
					name = EXCLUDED.name,
					status = EXCLUDED.status,
					is_scheduled = EXCLUDED.is_scheduled,
					time_zone = EXCLUDED.time_zone,
					hours = EXCLUDED.hours,
					interval_minutes = EXCLUDED.interval_minutes,
					max_advance_days = EXCLUDED.max_advance_days
			`, c.ID, c.OrganizationID, c.Name, string(c.Status), c.IsScheduled, tz, hours, interval, c.MaxAdvanceDays); err != nil {
				return fmt.Errorf("seed category %s: %w", c.ID, err)
			}
		}
		return nil
	})
}
