package queue

import (
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
)

// BaseCounter is the counter of the first appointment in an empty partition.
var BaseCounter = model.NewCounter(1)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// After returns the counter placed after c.
func After(c model.Counter) model.Counter {
	return model.Counter{Decimal: c.Add(one)}
}

// Before returns the counter placed before c.
func Before(c model.Counter) model.Counter {
	return model.Counter{Decimal: c.Sub(one)}
}

// Between returns a counter strictly between lo and hi. ok is false when no
// such value exists at model.CounterScale.
func Between(lo, hi model.Counter) (model.Counter, bool) {
	if !lo.Less(hi) {
		return model.Counter{}, false
	}
	mid := lo.Add(hi.Decimal).DivRound(two, model.CounterScale)
	c := model.Counter{Decimal: mid}
	if !lo.Less(c) || !c.Less(hi) {
		return model.Counter{}, false
	}
	return c, true
}

// Max returns the largest counter among appts, or false when appts is empty.
func Max(appts []model.Appointment) (model.Counter, bool) {
	if len(appts) == 0 {
		return model.Counter{}, false
	}
	m := appts[0].Counter
	for _, a := range appts[1:] {
		if m.Less(a.Counter) {
			m = a.Counter
		}
	}
	return m, true
}

// Next returns the counter that places a new member at the end of appts.
func Next(appts []model.Appointment) model.Counter {
	if m, ok := Max(appts); ok {
		return After(m)
	}
	return BaseCounter
}

// Renumber assigns 1..n to appts in their queue order. appts is not modified.
func Renumber(appts []model.Appointment) map[int64]model.Counter {
	ordered := append([]model.Appointment(nil), appts...)
	model.SortQueue(ordered)
	out := make(map[int64]model.Counter, len(ordered))
	for i, a := range ordered {
		out[a.ID] = model.NewCounter(int64(i + 1))
	}
	return out
}
