// Package locks provides the per-partition critical sections that serialize
// queue and slot mutations.
package locks

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/schedule"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context ended.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Locker grants exclusive access to a key until the returned unlock func is
// called. Lock must return promptly once ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// QueueKey names the critical section of one (organization, category) queue.
func QueueKey(p model.PartitionKey) string {
	return "queue:" + p.OrganizationID + ":" + p.CategoryID
}

// SlotKey names the critical section of one category's bookings on a
// calendar day, given as local midnight in the category zone.
func SlotKey(categoryID string, day time.Time) string {
	return "slot:" + categoryID + ":" + day.Format(schedule.DateLayout)
}

func timeoutError(cause error) error {
	return errors.Join(ErrLockTimeout, cause)
}
