package core

import (
	"fmt"
	"sort"
	"time"
)

const (
	SlotInterval = 15 * time.Minute

	minutesPerDay = 24 * 60
	naiveLayout   = "2006-01-02T15:04:05"
)

// referenceWeek is the Sunday that weekday 0 of a generic event maps onto.
var referenceWeek = time.Date(2012, time.January, 1, 0, 0, 0, 0, time.UTC)

// SlotKey identifies a timeslot of either kind. Only primitive fields, so it
// can be used as a map key and compared with ==.
//
// Specific slots set Unix (seconds since epoch, UTC). Generic slots set
// Weekday (0 = Sunday) and Minute (minutes since local midnight in the
// creator's timezone).
type SlotKey struct {
	Kind    EventKind
	Unix    int64
	Weekday int
	Minute  int
}

func SpecificSlot(t time.Time) SlotKey {
	return SlotKey{Kind: KindSpecific, Unix: t.Unix()}
}

func GenericSlot(weekday int, minute int) SlotKey {
	return SlotKey{Kind: KindGeneric, Weekday: weekday, Minute: minute}
}

// SlotKeyFromRaw converts a submitted event timeslot. Specific slots are
// absolute instants; generic slots only keep the weekday and wall clock of
// the value as it was written by the creator.
func SlotKeyFromRaw(kind EventKind, t time.Time) SlotKey {
	if kind == KindSpecific {
		return SpecificSlot(t.UTC())
	}

	return GenericSlot(int(t.Weekday()), t.Hour()*60+t.Minute())
}

// SlotKeyFromDisplay is the inverse of SlotKey.DisplayInstant. Values must sit
// exactly on the slot grid and generic values must fall inside the reference
// week.
func SlotKeyFromDisplay(kind EventKind, t time.Time) (SlotKey, bool) {
	if !onGrid(t) {
		return SlotKey{}, false
	}

	if kind == KindSpecific {
		return SpecificSlot(t.UTC()), true
	}

	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	offset := int(day.Sub(referenceWeek) / (24 * time.Hour))
	if day.Before(referenceWeek) || offset > 6 {
		return SlotKey{}, false
	}

	return GenericSlot(offset, t.Hour()*60+t.Minute()), true
}

// onGrid reports whether t falls exactly on a SlotInterval boundary.
func onGrid(t time.Time) bool {
	return t.Truncate(SlotInterval).Equal(t)
}

// SundayWeekday converts a Monday-based weekday index (0 = Monday) into the
// Sunday-based index stored for generic slots.
func SundayWeekday(mondayBased int) int {
	return (mondayBased + 1) % 7
}

func (k SlotKey) Instant() time.Time {
	return time.Unix(k.Unix, 0).UTC()
}

// DisplayInstant is the timestamp the API shows for the slot: the UTC instant
// for specific slots, the naive reference-week timestamp for generic ones.
func (k SlotKey) DisplayInstant() time.Time {
	if k.Kind == KindSpecific {
		return k.Instant()
	}

	return referenceWeek.AddDate(0, 0, k.Weekday).Add(time.Duration(k.Minute) * time.Minute)
}

func (k SlotKey) ISO() string {
	if k.Kind == KindSpecific {
		return k.Instant().Format(time.RFC3339)
	}

	return k.DisplayInstant().Format(naiveLayout)
}

func (k SlotKey) String() string {
	return k.ISO()
}

func (k SlotKey) Less(o SlotKey) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}

	if k.Kind == KindSpecific {
		return k.Unix < o.Unix
	}

	if k.Weekday != o.Weekday {
		return k.Weekday < o.Weekday
	}

	return k.Minute < o.Minute
}

func SortSlots(keys []SlotKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// ToComparableInstant maps a slot onto a timestamp usable for ordering and
// range arithmetic. Specific slots are shown in loc. Generic slots land on the
// reference week in the creator's own clock and are never converted to UTC,
// so daylight-saving shifts do not move them.
func ToComparableInstant(kind EventKind, slot SlotKey, loc *time.Location) time.Time {
	if kind == KindSpecific {
		if loc == nil {
			loc = time.UTC
		}

		return slot.Instant().In(loc)
	}

	return slot.DisplayInstant()
}

// ParseTimestamp accepts RFC3339 timestamps and naive ISO timestamps. Naive
// values are read as UTC wall clock.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return t, nil
	}

	t, err = time.Parse("2006-01-02T15:04:05.999999999", value)
	if err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("time zone is required")
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}

	return loc, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
