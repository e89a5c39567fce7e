package model

import (
	"cmp"
	"slices"
)

// CompareQueue orders appointments by counter, then by id.
func CompareQueue(a, b Appointment) int {
	if c := a.Counter.Cmp(b.Counter.Decimal); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CompareScheduled orders appointments by scheduled start, then by id.
func CompareScheduled(a, b Appointment) int {
	switch {
	case a.ScheduledTime == nil && b.ScheduledTime != nil:
		return 1
	case a.ScheduledTime != nil && b.ScheduledTime == nil:
		return -1
	case a.ScheduledTime != nil && b.ScheduledTime != nil:
		if c := a.ScheduledTime.Compare(*b.ScheduledTime); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortQueue sorts appts in queue order in place.
func SortQueue(appts []Appointment) {
	slices.SortFunc(appts, CompareQueue)
}
