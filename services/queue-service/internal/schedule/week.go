// Package schedule models a category's recurring weekly opening and break
// hours and resolves them into concrete open intervals for a date.
package schedule

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
)

// Week holds the windows of each weekday, indexed by time.Weekday.
type Week [7][]Window

// Hours is the full weekly schedule of a category.
type Hours struct {
	Opening Week
	Breaks  Week
}

// Closed reports whether no weekday has any opening window.
func (h Hours) Closed() bool {
	for _, ws := range h.Opening {
		if len(ws) > 0 {
			return false
		}
	}
	return true
}

type ErrorKind string

const (
	InvalidWindow       ErrorKind = "invalid_window"
	OverlappingWindows  ErrorKind = "overlapping_windows"
	BreakOutsideOpening ErrorKind = "break_outside_opening"
	BreakCoversOpening  ErrorKind = "break_covers_opening"
)

// ScheduleError names the weekday and the offending window pair. B is zero
// when only one window is involved.
type ScheduleError struct {
	Kind ErrorKind
	Day  time.Weekday
	A, B Window
}

func (e *ScheduleError) Error() string {
	switch e.Kind {
	case OverlappingWindows:
		return fmt.Sprintf("%s: windows %s and %s overlap", e.Day, e.A, e.B)
	case BreakOutsideOpening:
		return fmt.Sprintf("%s: break %s is not inside an opening window", e.Day, e.A)
	case BreakCoversOpening:
		return fmt.Sprintf("%s: break %s covers the whole opening window", e.Day, e.A)
	default:
		return fmt.Sprintf("%s: window %s must start before it ends", e.Day, e.A)
	}
}

func (e *ScheduleError) Unwrap() error { return apperr.ErrValidation }

// Validate checks every weekday of h and returns the first violation found,
// scanning Sunday through Saturday.
func Validate(h Hours) error {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if err := validateDay(d, h.Opening[d], h.Breaks[d]); err != nil {
			return err
		}
	}
	return nil
}

func validateDay(day time.Weekday, opening, breaks []Window) error {
	for _, set := range [][]Window{opening, breaks} {
		for _, w := range set {
			if w.Start < 0 || w.End > EndOfDay || w.Start >= w.End {
				return &ScheduleError{Kind: InvalidWindow, Day: day, A: w}
			}
		}
		if a, b, ok := firstOverlap(set); ok {
			return &ScheduleError{Kind: OverlappingWindows, Day: day, A: a, B: b}
		}
	}
	for _, br := range breaks {
		inside := false
		for _, op := range opening {
			if op == br {
				return &ScheduleError{Kind: BreakCoversOpening, Day: day, A: br, B: op}
			}
			if op.contains(br) {
				inside = true
			}
		}
		if !inside {
			return &ScheduleError{Kind: BreakOutsideOpening, Day: day, A: br}
		}
	}
	return nil
}

func firstOverlap(ws []Window) (Window, Window, bool) {
	sorted := sortedWindows(ws)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].overlaps(sorted[i]) {
			return sorted[i-1], sorted[i], true
		}
	}
	return Window{}, Window{}, false
}

func sortedWindows(ws []Window) []Window {
	out := slices.Clone(ws)
	slices.SortFunc(out, func(a, b Window) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
	})
	return out
}
