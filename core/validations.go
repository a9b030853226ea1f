package core

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultMaxEventDays = 30

	maxTitleLength       = 50
	maxDisplayNameLength = 25
	maxCodeLength        = 255
)

var (
	allowedDurations = []int{15, 30, 45, 60}

	customCodePattern = regexp.MustCompile(`^[A-Za-z0-9\-]+$`)

	reservedCodes = []string{
		"api",
		"dashboard",
		"forgot-password",
		"login",
		"new-event",
		"reset-password",
		"register",
		"verify-email",
		"version-history",
	}
)

// SlotRules carries what ValidateSlots needs beyond the slots themselves.
// EarliestDate and TimeZone only apply to specific events.
type SlotRules struct {
	Editing      bool
	EarliestDate time.Time
	TimeZone     *time.Location
	MaxEventDays int
}

func ValidateSlots(kind EventKind, slots []time.Time, rules SlotRules) error {
	verr := NewValidationError()

	if len(slots) == 0 {
		verr.Add(FieldTimeslots, "At least one timeslot is required.")
		return verr
	}

	if kind == KindSpecific {
		validateSpecificSpan(slots, rules, verr)
	}

	if !onSlotInterval(slots) {
		verr.Add(FieldTimeslots, "Timeslots must be on 15-minute intervals.")
	}

	return verr.OrNil()
}

func validateSpecificSpan(slots []time.Time, rules SlotRules, verr *ValidationError) {
	loc := rules.TimeZone
	if loc == nil {
		loc = time.UTC
	}

	maxDays := rules.MaxEventDays
	if maxDays <= 0 {
		maxDays = DefaultMaxEventDays
	}

	earliest, latest := slots[0], slots[0]
	startDate, endDate := dateOf(slots[0].UTC()), dateOf(slots[0].UTC())

	for _, slot := range slots[1:] {
		if slot.Before(earliest) {
			earliest = slot
		}

		if slot.After(latest) {
			latest = slot
		}

		day := dateOf(slot.UTC())
		if day.Before(startDate) {
			startDate = day
		}

		if day.After(endDate) {
			endDate = day
		}
	}

	// "today" belongs to the submitter, so the floor is compared in their zone
	startDateLocal := dateOf(earliest.In(loc))
	if startDateLocal.Before(dateOf(rules.EarliestDate)) {
		if rules.Editing {
			verr.Add(FieldTimeslots, "Event cannot start earlier than today, or be moved earlier if already before today.")
		} else {
			verr.Add(FieldTimeslots, "Event must start today or in the future.")
		}
	}

	if int(endDate.Sub(startDate).Hours()/24) > maxDays {
		verr.Add(FieldTimeslots, fmt.Sprintf("Max event length is %d days.", maxDays))
	}
}

func onSlotInterval(slots []time.Time) bool {
	for _, slot := range slots {
		if !onGrid(slot) {
			return false
		}
	}

	return true
}

// Today is the civil date of now in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return dateOf(now.In(loc))
}

// EditFloor is the earliest date an edited specific event may start on. An
// event already in the past keeps its own start as the floor so it can be
// edited without being pushed forward, but never moved further back.
func EditFloor(today time.Time, existingEarliest SlotKey, eventLoc *time.Location) time.Time {
	existing := dateOf(existingEarliest.Instant().In(eventLoc))
	if existing.Before(today) {
		return existing
	}

	return today
}

// DedupeSlots drops repeated raw timeslots, keeping first occurrences.
func DedupeSlots(kind EventKind, slots []time.Time) []time.Time {
	type rawKey struct {
		instant int64
		weekday time.Weekday
		clock   time.Duration
	}

	seen := make(map[rawKey]struct{}, len(slots))
	out := make([]time.Time, 0, len(slots))

	for _, slot := range slots {
		var key rawKey
		if kind == KindSpecific {
			key.instant = slot.UnixNano()
		} else {
			key.weekday = slot.Weekday()
			key.clock = slot.Sub(time.Date(slot.Year(), slot.Month(), slot.Day(), 0, 0, 0, 0, slot.Location()))
		}

		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, slot)
	}

	return out
}

func ValidateEventInfo(info EventInfo) error {
	verr := NewValidationError()

	title := strings.TrimSpace(info.Title)
	if len(title) == 0 {
		verr.Add(FieldTitle, "Title is required.")
	} else if utf8.RuneCountInString(title) > maxTitleLength {
		verr.Add(FieldTitle, fmt.Sprintf("Title is too long (%d characters tops).", maxTitleLength))
	}

	if info.Duration != nil && !slices.Contains(allowedDurations, *info.Duration) {
		verr.Add(FieldDuration, "Invalid value. Valid values are: 15, 30, 45, 60")
	}

	if _, err := LoadLocation(info.TimeZone); err != nil {
		verr.Add(FieldTimeZone, "Invalid time zone.")
	}

	return verr.OrNil()
}

func ValidateDisplayName(name string) error {
	verr := NewValidationError()

	name = strings.TrimSpace(name)
	if len(name) == 0 {
		verr.Add(FieldDisplayName, "Display name is required.")
	} else if utf8.RuneCountInString(name) > maxDisplayNameLength {
		verr.Add(FieldDisplayName, fmt.Sprintf("Display name is too long (%d characters tops).", maxDisplayNameLength))
	}

	return verr.OrNil()
}

// ValidateCustomCode checks the shape of a custom url code. Availability is
// checked against storage by the scheduler.
func ValidateCustomCode(code string) error {
	verr := NewValidationError()

	switch {
	case len(code) > maxCodeLength:
		verr.Add(FieldCustomCode, fmt.Sprintf("Code must be %d characters or less.", maxCodeLength))
	case !customCodePattern.MatchString(code):
		verr.Add(FieldCustomCode, "Code must contain only alphanumeric characters and dashes.")
	case slices.Contains(reservedCodes, code):
		verr.Add(FieldCustomCode, "Code unavailable.")
	}

	return verr.OrNil()
}
