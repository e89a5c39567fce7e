package availability

import (
	"time"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/schedule"
)

// Slot is one bookable interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Taken bool      `json:"taken"`
}

// Slots partitions each open window into consecutive interval-long slots
// starting at the window start. A trailing remainder shorter than interval is
// dropped. A slot is taken when any busy interval overlaps it.
func Slots(windows []schedule.Interval, interval time.Duration, busy []schedule.Interval) []Slot {
	if interval <= 0 {
		return nil
	}
	var out []Slot
	for _, w := range windows {
		for t := w.Start; !t.Add(interval).After(w.End); t = t.Add(interval) {
			end := t.Add(interval)
			out = append(out, Slot{Start: t, End: end, Taken: overlapsAny(t, end, busy)})
		}
	}
	return out
}

// Available counts slots that are not taken.
func Available(slots []Slot) int {
	n := 0
	for _, s := range slots {
		if !s.Taken {
			n++
		}
	}
	return n
}

func overlapsAny(start, end time.Time, busy []schedule.Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
