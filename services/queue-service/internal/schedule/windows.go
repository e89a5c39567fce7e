package schedule

import (
	"cmp"
	"slices"
	"time"
)

// DateLayout is the civil-date layout used across the service.
const DateLayout = "2006-01-02"

// Interval is an absolute half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects i.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// ParseDate parses YYYY-MM-DD as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// Midnight returns local midnight of the calendar day date falls on in loc.
func Midnight(date time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// WindowsFor resolves the open intervals of the calendar day of date in loc:
// that weekday's opening windows minus its breaks, in chronological order.
// The result is empty when the weekday has no opening hours.
func WindowsFor(h Hours, date time.Time, loc *time.Location) []Interval {
	day := Midnight(date, loc)
	wd := day.Weekday()

	var out []Interval
	for _, op := range sortedWindows(h.Opening[wd]) {
		base := absolute(day, op, loc)
		var blocks []Interval
		for _, br := range h.Breaks[wd] {
			blocks = append(blocks, absolute(day, br, loc))
		}
		out = append(out, subtract(base, blocks)...)
	}
	return out
}

func absolute(day time.Time, w Window, loc *time.Location) Interval {
	return Interval{
		Start: time.Date(day.Year(), day.Month(), day.Day(), 0, int(w.Start), 0, 0, loc),
		End:   time.Date(day.Year(), day.Month(), day.Day(), 0, int(w.End), 0, 0, loc),
	}
}

// subtract removes blocks from base. Blocks are clipped to base, then sorted
// and merged before subtraction.
func subtract(base Interval, blocks []Interval) []Interval {
	if !base.End.After(base.Start) {
		return nil
	}
	var clipped []Interval
	for _, b := range blocks {
		if !b.Start.Before(base.End) || !b.End.After(base.Start) {
			continue
		}
		if b.Start.Before(base.Start) {
			b.Start = base.Start
		}
		if b.End.After(base.End) {
			b.End = base.End
		}
		if b.End.After(b.Start) {
			clipped = append(clipped, b)
		}
	}
	if len(clipped) == 0 {
		return []Interval{base}
	}

	sortIntervals(clipped)
	merged := make([]Interval, 0, len(clipped))
	for _, cur := range clipped {
		if len(merged) == 0 || cur.Start.After(merged[len(merged)-1].End) {
			merged = append(merged, cur)
			continue
		}
		if last := &merged[len(merged)-1]; cur.End.After(last.End) {
			last.End = cur.End
		}
	}

	var out []Interval
	cursor := base.Start
	for _, m := range merged {
		if m.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: m.Start})
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}
	if base.End.After(cursor) {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}

func sortIntervals(in []Interval) {
	slices.SortFunc(in, func(a, b Interval) int {
		return cmp.Or(a.Start.Compare(b.Start), a.End.Compare(b.End))
	})
}
