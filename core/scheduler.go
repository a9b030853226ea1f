package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const FieldAvailability = "availability"

type Scheduler interface {
	CreateEvent(ctx context.Context, req CreateEventRequest) (string, error)
	EditEvent(ctx context.Context, req EditEventRequest) error
	GetEventDetails(ctx context.Context, code string, viewer string) (*EventDetails, error)
	CheckCode(ctx context.Context, code string) error

	SubmitAvailability(ctx context.Context, req AvailabilityRequest) (bool, error)
	CheckDisplayName(ctx context.Context, code string, identity string, displayName string) error
	GetSelfAvailability(ctx context.Context, code string, identity string) (*SelfAvailability, error)
	GetAllAvailability(ctx context.Context, code string, viewer string) (*AllAvailability, error)
	RemoveSelfAvailability(ctx context.Context, code string, identity string) error
	RemoveAvailability(ctx context.Context, code string, requester string, displayName string) error

	GetDashboard(ctx context.Context, identity string) (*Dashboard, error)
	PurgeExpiredCodes(ctx context.Context) (int64, error)
}

type SchedulerConfig struct {
	MaxEventDays  int
	CodeLength    int
	CodeAttempts  int
	CodeRetention time.Duration
	Now           func() time.Time
	GenerateCode  func(length int) (string, error)
}

type scheduler struct {
	repository Repository
	config     SchedulerConfig
}

func NewScheduler(repository Repository, config SchedulerConfig) Scheduler {
	if config.MaxEventDays <= 0 {
		config.MaxEventDays = DefaultMaxEventDays
	}

	if config.CodeLength <= 0 {
		config.CodeLength = DefaultCodeLength
	}

	if config.CodeAttempts <= 0 {
		config.CodeAttempts = DefaultCodeAttempts
	}

	if config.CodeRetention <= 0 {
		config.CodeRetention = 14 * 24 * time.Hour
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	if config.GenerateCode == nil {
		config.GenerateCode = GenerateCode
	}

	return &scheduler{repository: repository, config: config}
}

func (s *scheduler) CreateEvent(ctx context.Context, req CreateEventRequest) (string, error) {
	slots := DedupeSlots(req.Kind, req.Slots)

	verr := NewValidationError()
	if err := ValidateEventInfo(req.EventInfo); err != nil {
		verr.Merge(asValidation(err))
	}

	loc, err := LoadLocation(req.TimeZone)
	if err != nil {
		loc = time.UTC
	}

	rules := SlotRules{
		EarliestDate: Today(s.config.Now(), loc),
		TimeZone:     loc,
		MaxEventDays: s.config.MaxEventDays,
	}
	if err := ValidateSlots(req.Kind, slots, rules); err != nil {
		verr.Merge(asValidation(err))
	}

	if !verr.Empty() {
		return "", verr
	}

	event := &Event{
		CreatorId: req.Creator,
		Title:     strings.TrimSpace(req.Title),
		Kind:      req.Kind,
		Duration:  req.Duration,
		TimeZone:  req.TimeZone,
	}

	err = s.repository.InTx(ctx, func(ctx context.Context, store Store) error {
		code, err := s.resolveCode(ctx, store, req.CustomCode)
		if err != nil {
			return err
		}

		event.Code = code

		_, err = store.CreateEvent(ctx, event, SlotSetFromRaw(req.Kind, slots).Sorted())
		if errors.Is(err, ErrCodeTaken) && req.CustomCode != "" {
			return codeUnavailable()
		}

		return err
	})
	if err != nil {
		return "", wrapUnlessDomain("failed to create event", err)
	}

	log.Ctx(ctx).Debug().Str("event_code", event.Code).Msg("event created")

	return event.Code, nil
}

// resolveCode runs on the store that persists the event, so the code is
// still free when the event is written.
func (s *scheduler) resolveCode(ctx context.Context, store Store, custom string) (string, error) {
	if custom != "" {
		if err := checkCode(ctx, store, custom); err != nil {
			return "", err
		}

		return custom, nil
	}

	for range s.config.CodeAttempts + 1 {
		candidate, err := s.config.GenerateCode(s.config.CodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate url code: %w", err)
		}

		taken, err := store.CodeExists(ctx, candidate)
		if err != nil {
			return "", err
		}

		if !taken {
			return candidate, nil
		}
	}

	log.Ctx(ctx).WithLevel(zerolog.FatalLevel).Err(ErrCodeGeneration).Msg("failed to generate a unique url code")

	return "", fmt.Errorf("failed to generate url code: %w", ErrCodeGeneration)
}

func (s *scheduler) CheckCode(ctx context.Context, code string) error {
	return s.repository.View(ctx, func(ctx context.Context, store Store) error {
		return checkCode(ctx, store, code)
	})
}

func checkCode(ctx context.Context, store Store, code string) error {
	if err := ValidateCustomCode(code); err != nil {
		return err
	}

	taken, err := store.CodeExists(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to check code: %w", err)
	}

	if taken {
		return codeUnavailable()
	}

	return nil
}

func codeUnavailable() error {
	verr := NewValidationError()
	verr.Add(FieldCustomCode, "Code unavailable.")

	return verr
}

func (s *scheduler) EditEvent(ctx context.Context, req EditEventRequest) error {
	slots := DedupeSlots(req.Kind, req.Slots)

	verr := NewValidationError()
	if err := ValidateEventInfo(req.EventInfo); err != nil {
		verr.Merge(asValidation(err))
	}

	loc, err := LoadLocation(req.TimeZone)
	if err != nil {
		loc = time.UTC
	}

	if req.Editor == "" {
		return ErrEventNotFound
	}

	now := s.config.Now()

	err = s.repository.InTx(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, req.Code)
		if err != nil {
			return err
		}

		if event.Kind != req.Kind {
			return ErrEventNotFound
		}

		if event.CreatorId != req.Editor {
			return ErrNotCreator
		}

		existing, err := store.ListSlots(ctx, event)
		if err != nil {
			return err
		}

		if len(existing) == 0 {
			reportNoSlots(ctx, event)
			return ErrNoSlots
		}

		rules := SlotRules{Editing: true, TimeZone: loc, MaxEventDays: s.config.MaxEventDays}
		if event.Kind == KindSpecific {
			eventLoc, err := LoadLocation(event.TimeZone)
			if err != nil {
				eventLoc = time.UTC
			}

			SortSlots(existing)
			rules.EarliestDate = EditFloor(Today(now, loc), existing[0], eventLoc)
		}

		if err := ValidateSlots(req.Kind, slots, rules); err != nil {
			verr.Merge(asValidation(err))
		}

		if !verr.Empty() {
			return verr
		}

		event.Title = strings.TrimSpace(req.Title)
		event.Duration = req.Duration
		event.TimeZone = req.TimeZone
		event.UpdatedAt = now

		if err := store.UpdateEvent(ctx, event); err != nil {
			return err
		}

		diff := Reconcile(NewSlotSet(existing...), SlotSetFromRaw(req.Kind, slots))

		if len(diff.ToDelete) > 0 {
			if err := store.DeleteSlots(ctx, event, diff.ToDelete); err != nil {
				return err
			}
		}

		if len(diff.ToAdd) > 0 {
			if err := store.InsertSlots(ctx, event, diff.ToAdd); err != nil {
				return err
			}
		}

		log.Ctx(ctx).Debug().Str("event_code", req.Code).
			Int("deleted", len(diff.ToDelete)).Int("added", len(diff.ToAdd)).Msg("event timeslots reconciled")

		return store.TouchCode(ctx, req.Code, now)
	})
	if err != nil {
		return wrapUnlessDomain("failed to edit event", err)
	}

	return nil
}

func (s *scheduler) GetEventDetails(ctx context.Context, code string, viewer string) (*EventDetails, error) {
	var details *EventDetails

	err := s.repository.View(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, code)
		if err != nil {
			return err
		}

		slots, err := store.ListSlots(ctx, event)
		if err != nil {
			return err
		}

		bounds, err := s.bounds(ctx, event, slots)
		if err != nil {
			return err
		}

		details = &EventDetails{
			Title:     event.Title,
			EventType: event.Kind.Label(),
			Kind:      event.Kind,
			Duration:  event.Duration,
			TimeZone:  event.TimeZone,
			StartDate: bounds.StartDate(),
			EndDate:   bounds.EndDate(),
			StartTime: bounds.StartTime(),
			EndTime:   bounds.EndTime(),
			Timeslots: AvailabilityForParticipant(slots),
			IsCreator: viewer != "" && viewer == event.CreatorId,
		}

		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain("failed to get event details", err)
	}

	return details, nil
}

func (s *scheduler) bounds(ctx context.Context, event *Event, slots []SlotKey) (Bounds, error) {
	loc, err := LoadLocation(event.TimeZone)
	if err != nil {
		loc = time.UTC
	}

	bounds, err := ComputeBounds(event.Kind, slots, loc)
	if errors.Is(err, ErrNoSlots) {
		reportNoSlots(ctx, event)
	}

	return bounds, err
}

func (s *scheduler) SubmitAvailability(ctx context.Context, req AvailabilityRequest) (bool, error) {
	verr := NewValidationError()
	if err := ValidateDisplayName(req.DisplayName); err != nil {
		verr.Merge(asValidation(err))
	}

	if _, err := LoadLocation(req.TimeZone); err != nil {
		verr.Add(FieldTimeZone, "Invalid time zone.")
	}

	if len(req.Slots) == 0 {
		verr.Add(FieldAvailability, "At least one timeslot is required.")
	}

	if !verr.Empty() {
		return false, verr
	}

	displayName := strings.TrimSpace(req.DisplayName)
	now := s.config.Now()

	var created bool

	err := s.repository.InTx(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, req.Code)
		if err != nil {
			return err
		}

		holder, err := store.GetParticipantByName(ctx, event.Id, displayName)
		if err != nil && !errors.Is(err, ErrParticipantNotFound) {
			return err
		}

		if holder != nil && holder.Identity != req.Identity {
			return ErrNameTaken
		}

		existing, err := store.ListSlots(ctx, event)
		if err != nil {
			return err
		}

		known := NewSlotSet(existing...)
		marked := make(SlotSet, len(req.Slots))

		for _, raw := range req.Slots {
			key, ok := SlotKeyFromDisplay(event.Kind, raw)
			if !ok || !known.Has(key) {
				return ErrInvalidSlot
			}

			marked[key] = struct{}{}
		}

		participant, isNew, err := store.SaveParticipant(ctx, &Participant{
			EventId:     event.Id,
			Identity:    req.Identity,
			DisplayName: displayName,
			TimeZone:    req.TimeZone,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}

		if err := store.ReplaceMarks(ctx, event, participant.Id, marked.Sorted()); err != nil {
			return err
		}

		created = isNew

		return store.TouchCode(ctx, req.Code, now)
	})
	if err != nil {
		return false, wrapUnlessDomain("failed to submit availability", err)
	}

	log.Ctx(ctx).Debug().Str("event_code", req.Code).Bool("created", created).Msg("availability saved")

	return created, nil
}

func (s *scheduler) CheckDisplayName(ctx context.Context, code string, identity string, displayName string) error {
	if err := ValidateDisplayName(displayName); err != nil {
		return err
	}

	err := s.repository.View(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, code)
		if err != nil {
			return err
		}

		holder, err := store.GetParticipantByName(ctx, event.Id, strings.TrimSpace(displayName))
		if errors.Is(err, ErrParticipantNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		if identity == "" || holder.Identity != identity {
			return ErrNameTaken
		}

		return nil
	})

	return wrapUnlessDomain("failed to check display name", err)
}

func (s *scheduler) GetSelfAvailability(ctx context.Context, code string, identity string) (*SelfAvailability, error) {
	if identity == "" {
		return nil, ErrNotParticipant
	}

	var self *SelfAvailability

	err := s.repository.View(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, code)
		if err != nil {
			return err
		}

		participant, err := store.GetParticipant(ctx, event.Id, identity)
		if errors.Is(err, ErrParticipantNotFound) {
			return ErrNotParticipant
		}

		if err != nil {
			return err
		}

		slots, err := store.ListParticipantMarks(ctx, event, participant.Id)
		if err != nil {
			return err
		}

		self = &SelfAvailability{
			DisplayName:    participant.DisplayName,
			AvailableDates: AvailabilityForParticipant(slots),
			TimeZone:       participant.TimeZone,
		}

		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain("failed to get availability", err)
	}

	return self, nil
}

func (s *scheduler) GetAllAvailability(ctx context.Context, code string, viewer string) (*AllAvailability, error) {
	var all *AllAvailability

	err := s.repository.View(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, code)
		if err != nil {
			return err
		}

		slots, err := store.ListSlots(ctx, event)
		if err != nil {
			return err
		}

		participants, err := store.ListParticipants(ctx, event.Id)
		if err != nil {
			return err
		}

		participants = OrderParticipants(participants)

		var marks []Mark
		if len(participants) > 0 {
			marks, err = store.ListMarks(ctx, event)
			if err != nil {
				return err
			}
		}

		all = &AllAvailability{
			Participants: make([]string, 0, len(participants)),
			Availability: Aggregate(ctx, slots, participants, marks),
			IsCreator:    viewer != "" && viewer == event.CreatorId,
		}

		for _, p := range participants {
			all.Participants = append(all.Participants, p.DisplayName)

			if viewer != "" && p.Identity == viewer {
				name := p.DisplayName
				all.UserDisplayName = &name
			}
		}

		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain("failed to get availability", err)
	}

	return all, nil
}

func (s *scheduler) RemoveSelfAvailability(ctx context.Context, code string, identity string) error {
	if identity == "" {
		return ErrNotParticipant
	}

	err := s.repository.InTx(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, code)
		if err != nil {
			return err
		}

		participant, err := store.GetParticipant(ctx, event.Id, identity)
		if errors.Is(err, ErrParticipantNotFound) {
			return ErrNotParticipant
		}

		if err != nil {
			return err
		}

		return store.DeleteParticipant(ctx, participant.Id)
	})

	return wrapUnlessDomain("failed to remove availability", err)
}

func (s *scheduler) RemoveAvailability(ctx context.Context, code string, requester string, displayName string) error {
	if requester == "" {
		return ErrNotCreator
	}

	err := s.repository.InTx(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, code)
		if err != nil {
			return err
		}

		if event.CreatorId != requester {
			return ErrNotCreator
		}

		participant, err := store.GetParticipantByName(ctx, event.Id, strings.TrimSpace(displayName))
		if err != nil {
			return err
		}

		return store.DeleteParticipant(ctx, participant.Id)
	})

	return wrapUnlessDomain("failed to remove availability", err)
}

func (s *scheduler) GetDashboard(ctx context.Context, identity string) (*Dashboard, error) {
	dashboard := &Dashboard{
		CreatedEvents:      []DashboardEvent{},
		ParticipatedEvents: []DashboardEvent{},
	}

	if identity == "" {
		return dashboard, nil
	}

	err := s.repository.View(ctx, func(ctx context.Context, store Store) error {
		created, err := store.ListEventsByCreator(ctx, identity)
		if err != nil {
			return err
		}

		participated, err := store.ListEventsByParticipant(ctx, identity)
		if err != nil {
			return err
		}

		for _, event := range created {
			entry, err := s.dashboardEvent(ctx, store, &event)
			if err != nil {
				return err
			}

			dashboard.CreatedEvents = append(dashboard.CreatedEvents, *entry)
		}

		for _, event := range participated {
			entry, err := s.dashboardEvent(ctx, store, &event)
			if err != nil {
				return err
			}

			dashboard.ParticipatedEvents = append(dashboard.ParticipatedEvents, *entry)
		}

		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain("failed to get dashboard", err)
	}

	return dashboard, nil
}

func (s *scheduler) dashboardEvent(ctx context.Context, store Store, event *Event) (*DashboardEvent, error) {
	slots, err := store.ListSlots(ctx, event)
	if err != nil {
		return nil, err
	}

	bounds, err := s.bounds(ctx, event, slots)
	if err != nil {
		return nil, err
	}

	participants, err := store.ListParticipants(ctx, event.Id)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(participants))
	for _, p := range OrderParticipants(participants) {
		names = append(names, p.DisplayName)
	}

	return &DashboardEvent{
		Title:        event.Title,
		EventType:    event.Kind.Label(),
		Duration:     event.Duration,
		StartDate:    bounds.StartDate(),
		EndDate:      bounds.EndDate(),
		StartTime:    bounds.StartTime(),
		EndTime:      bounds.EndTime(),
		TimeZone:     event.TimeZone,
		Participants: names,
		EventCode:    event.Code,
	}, nil
}

func (s *scheduler) PurgeExpiredCodes(ctx context.Context) (int64, error) {
	before := s.config.Now().Add(-s.config.CodeRetention)

	var purged int64

	err := s.repository.InTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		purged, err = store.DeleteCodesUnusedSince(ctx, before)

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired codes: %w", err)
	}

	log.Ctx(ctx).Info().Int64("purged", purged).Time("before", before).Msg("expired url codes purged")

	return purged, nil
}

func reportNoSlots(ctx context.Context, event *Event) {
	log.Ctx(ctx).WithLevel(zerolog.FatalLevel).
		Str("event_id", event.Id).Str("event_code", event.Code).Msg("event has no timeslots")
}

func asValidation(err error) *ValidationError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}

	return nil
}

// wrapUnlessDomain keeps domain errors as they are so callers can match them
// with errors.Is, and wraps storage failures with context.
func wrapUnlessDomain(message string, err error) error {
	if err == nil {
		return nil
	}

	domain := []error{
		ErrEventNotFound, ErrParticipantNotFound, ErrNotParticipant, ErrNotCreator,
		ErrNameTaken, ErrInvalidSlot, ErrNoSlots, ErrCodeTaken, ErrCodeGeneration,
	}
	for _, target := range domain {
		if errors.Is(err, target) {
			return err
		}
	}

	if asValidation(err) != nil {
		return err
	}

	return fmt.Errorf("%s: %w", message, err)
}
