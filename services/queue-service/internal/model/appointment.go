package model

import "time"

// Appointment is a customer's place in a category queue (unscheduled) or a
// booked time slot (scheduled).
type Appointment struct {
	ID               int64
	OrganizationID   string
	CategoryID       string
	UserID           string
	IsScheduled      bool
	Status           Status
	Counter          Counter
	ScheduledTime    *time.Time
	ScheduledEndTime *time.Time
	DateCreated      time.Time
	UpdatedAt        time.Time
	// CreatedBy and UpdatedBy hold the acting principal's user id, or
	// "system" for changes driven by catalog events.
	CreatedBy string
	UpdatedBy string
}

// PartitionKey identifies the queue an unscheduled appointment belongs to.
type PartitionKey struct {
	OrganizationID string
	CategoryID     string
}

func (a Appointment) Partition() PartitionKey {
	return PartitionKey{OrganizationID: a.OrganizationID, CategoryID: a.CategoryID}
}
