package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Clock is a wall-clock time of day in minutes since local midnight.
// 24:00 (1440) is accepted as a window end.
type Clock int

const EndOfDay Clock = 24 * 60

func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 || hh < 0 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	c := Clock(hh*60 + mm)
	if c > EndOfDay {
		return 0, fmt.Errorf("invalid time %q: past end of day", s)
	}
	return c, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Window is the half-open range [Start, End) of a day.
type Window struct {
	Start Clock
	End   Clock
}

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }

func (w Window) overlaps(o Window) bool { return w.Start < o.End && o.Start < w.End }

func (w Window) contains(o Window) bool { return w.Start <= o.Start && o.End <= w.End }
