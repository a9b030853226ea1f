package core

import "time"

type EventKind string

const (
	KindSpecific EventKind = "SPECIFIC"
	KindGeneric  EventKind = "GENERIC"
)

// Label is the name the API uses for the kind.
func (k EventKind) Label() string {
	switch k {
	case KindSpecific:
		return "Date"
	case KindGeneric:
		return "Week"
	default:
		return string(k)
	}
}

type Event struct {
	Id        string    `json:"id,omitempty"`
	Code      string    `json:"event_code,omitempty"`
	CreatorId string    `json:"-"`
	Title     string    `json:"title,omitempty"`
	Kind      EventKind `json:"kind,omitempty"`
	Duration  *int      `json:"duration,omitempty"`
	TimeZone  string    `json:"time_zone,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Participant struct {
	Id          string    `json:"id,omitempty"`
	EventId     string    `json:"-"`
	Identity    string    `json:"-"`
	DisplayName string    `json:"display_name,omitempty"`
	TimeZone    string    `json:"time_zone,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Mark is one availability mark joined with its owning participant.
type Mark struct {
	ParticipantId string
	Slot          SlotKey
}

type EventInfo struct {
	Title    string
	Duration *int
	TimeZone string
	Slots    []time.Time
}

type CreateEventRequest struct {
	EventInfo
	Kind       EventKind
	CustomCode string
	Creator    string
}

type EditEventRequest struct {
	EventInfo
	Kind   EventKind
	Code   string
	Editor string
}

type AvailabilityRequest struct {
	Code        string
	Identity    string
	DisplayName string
	TimeZone    string
	Slots       []time.Time
}

type EventDetails struct {
	Title     string    `json:"title"`
	EventType string    `json:"event_type"`
	Duration  *int      `json:"duration,omitempty"`
	TimeZone  string    `json:"time_zone"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Timeslots []string  `json:"timeslots"`
	IsCreator bool      `json:"is_creator"`
	Kind      EventKind `json:"-"`
}

type SelfAvailability struct {
	DisplayName    string   `json:"display_name"`
	AvailableDates []string `json:"available_dates"`
	TimeZone       string   `json:"time_zone"`
}

type AllAvailability struct {
	UserDisplayName *string             `json:"user_display_name"`
	Participants    []string            `json:"participants"`
	Availability    map[string][]string `json:"availability"`
	IsCreator       bool                `json:"is_creator"`
}

type DashboardEvent struct {
	Title        string   `json:"title"`
	EventType    string   `json:"event_type"`
	Duration     *int     `json:"duration,omitempty"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	TimeZone     string   `json:"time_zone"`
	Participants []string `json:"participants"`
	EventCode    string   `json:"event_code"`
}

type Dashboard struct {
	CreatedEvents      []DashboardEvent `json:"created_events"`
	ParticipatedEvents []DashboardEvent `json:"participated_events"`
}
