package model

import (
	"time"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/schedule"
)

type Organization struct {
	ID     string
	Name   string
	Status EntityStatus
}

type Category struct {
	ID             string
	OrganizationID string
	Name           string
	Status         EntityStatus
	IsScheduled    bool
	TimeZone       string
	Hours          schedule.Hours
	Interval       time.Duration
	MaxAdvanceDays int
}

// Location resolves TimeZone, falling back to UTC for an empty or unknown zone.
func (c Category) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
