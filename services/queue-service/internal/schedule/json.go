package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ParseWeekday accepts full English day names, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// MarshalJSON encodes w as {"Monday": [["09:00","17:00"]], ...}, omitting
// closed days.
func (w Week) MarshalJSON() ([]byte, error) {
	out := make(map[string][][2]string, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if len(w[d]) == 0 {
			continue
		}
		pairs := make([][2]string, 0, len(w[d]))
		for _, win := range w[d] {
			pairs = append(pairs, [2]string{win.Start.String(), win.End.String()})
		}
		out[d.String()] = pairs
	}
	return json.Marshal(out)
}

func (w *Week) UnmarshalJSON(b []byte) error {
	var raw map[string][][2]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var week Week
	for name, pairs := range raw {
		d, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			start, err := ParseClock(p[0])
			if err != nil {
				return fmt.Errorf("%s: %w", d, err)
			}
			end, err := ParseClock(p[1])
			if err != nil {
				return fmt.Errorf("%s: %w", d, err)
			}
			week[d] = append(week[d], Window{Start: start, End: end})
		}
	}
	*w = week
	return nil
}

type hoursJSON struct {
	Opening Week `json:"opening_hours"`
	Breaks  Week `json:"break_hours"`
}

func (h Hours) MarshalJSON() ([]byte, error) {
	return json.Marshal(hoursJSON{Opening: h.Opening, Breaks: h.Breaks})
}

func (h *Hours) UnmarshalJSON(b []byte) error {
	var raw hoursJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	h.Opening, h.Breaks = raw.Opening, raw.Breaks
	return nil
}
