package core

import (
	"time"
)

// Bounds is the date/time envelope of an event. Start combines the earliest
// date with the earliest clock, End the latest date with the latest clock
// plus one slot. Neither needs to be a real slot.
type Bounds struct {
	Start time.Time
	End   time.Time
}

func (b Bounds) StartDate() string { return b.Start.Format(time.DateOnly) }
func (b Bounds) EndDate() string   { return b.End.Format(time.DateOnly) }
func (b Bounds) StartTime() string { return b.Start.Format(time.TimeOnly) }
func (b Bounds) EndTime() string   { return b.End.Format(time.TimeOnly) }

// ComputeBounds summarises slots for display. Specific events are evaluated in
// the event's timezone and reported in UTC; generic events stay in the
// creator's local clock.
//
// The end clock is always the last slot's start plus 15 minutes, whatever the
// configured duration. A slot at 23:45 wraps to 00:00 on the same date.
func ComputeBounds(kind EventKind, slots []SlotKey, loc *time.Location) (Bounds, error) {
	if len(slots) == 0 {
		return Bounds{}, ErrNoSlots
	}

	if loc == nil {
		loc = time.UTC
	}

	var startDate, endDate time.Time

	startClock, endClock := minutesPerDay, -1

	for i, slot := range slots {
		local := ToComparableInstant(kind, slot, loc)

		day := dateOf(local)
		if i == 0 || day.Before(startDate) {
			startDate = day
		}

		if i == 0 || day.After(endDate) {
			endDate = day
		}

		clock := minuteOfDay(local)
		startClock = min(startClock, clock)
		endClock = max(endClock, clock)
	}

	endClock = (endClock + int(SlotInterval/time.Minute)) % minutesPerDay

	zone := loc
	if kind == KindGeneric {
		zone = time.UTC
	}

	start := combine(startDate, startClock, zone)
	end := combine(endDate, endClock, zone)

	if kind == KindSpecific {
		start, end = start.UTC(), end.UTC()
	}

	return Bounds{Start: start, End: end}, nil
}

func combine(day time.Time, clock int, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, clock/60, clock%60, 0, 0, loc)
}
