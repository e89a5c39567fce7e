package model

import (
	"github.com/shopspring/decimal"
)

// CounterScale is the number of fractional digits a queue counter keeps.
const CounterScale = 12

// Counter is the ordering key of an unscheduled appointment.
type Counter struct {
	decimal.Decimal
}

func NewCounter(v int64) Counter {
	return Counter{decimal.NewFromInt(v)}
}

func ParseCounter(s string) (Counter, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Counter{}, err
	}
	return Counter{d.Round(CounterScale)}, nil
}

func (c Counter) Less(o Counter) bool { return c.Decimal.LessThan(o.Decimal) }
