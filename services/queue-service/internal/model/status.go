package model

import "fmt"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusCheckin  Status = "checkin"
	StatusCancel   Status = "cancel"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusInactive, StatusCheckin, StatusCancel:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Queued reports whether s still holds a place in its queue partition.
func (s Status) Queued() bool {
	return s == StatusActive || s == StatusInactive
}

// EntityStatus is the status of an organization or category.
type EntityStatus string

const (
	EntityActive   EntityStatus = "active"
	EntityInactive EntityStatus = "inactive"
)

func ParseEntityStatus(s string) (EntityStatus, error) {
	switch st := EntityStatus(s); st {
	case EntityActive, EntityInactive:
		return st, nil
	}
	return "", fmt.Errorf("unknown entity status %q", s)
}
