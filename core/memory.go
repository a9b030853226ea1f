package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryCode struct {
	eventId  string
	lastUsed time.Time
}

type memoryState struct {
	events       map[string]Event
	codes        map[string]memoryCode
	slots        map[string]SlotSet
	participants map[string]Participant
	marks        map[string]SlotSet
	clock        time.Time
}

func newMemoryState() *memoryState {
	return &memoryState{
		events:       map[string]Event{},
		codes:        map[string]memoryCode{},
		slots:        map[string]SlotSet{},
		participants: map[string]Participant{},
		marks:        map[string]SlotSet{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	c.clock = s.clock

	for k, v := range s.events {
		c.events[k] = v
	}

	for k, v := range s.codes {
		c.codes[k] = v
	}

	for k, v := range s.slots {
		c.slots[k] = NewSlotSet(v.Sorted()...)
	}

	for k, v := range s.participants {
		c.participants[k] = v
	}

	for k, v := range s.marks {
		c.marks[k] = NewSlotSet(v.Sorted()...)
	}

	return c
}

type memoryRepository struct {
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

// NewMemoryRepository keeps everything in process memory. Transactions work on
// a copy of the state that replaces the original only when fn succeeds.
func NewMemoryRepository() Repository {
	return &memoryRepository{state: newMemoryState(), now: time.Now}
}

func (r *memoryRepository) InTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	working := r.state.clone()

	err := fn(ctx, &memoryStore{state: working, now: r.now})
	if err != nil {
		return err
	}

	r.state = working

	return nil
}

func (r *memoryRepository) View(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// reads only; a copy keeps stray writes from leaking
	return fn(ctx, &memoryStore{state: r.state.clone(), now: r.now})
}

type memoryStore struct {
	state *memoryState
	now   func() time.Time
}

// tick returns a strictly increasing timestamp so creation order is total.
func (s *memoryStore) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.state.clock) {
		t = s.state.clock.Add(time.Nanosecond)
	}

	s.state.clock = t

	return t
}

func (s *memoryStore) CodeExists(_ context.Context, code string) (bool, error) {
	_, ok := s.state.codes[code]
	return ok, nil
}

func (s *memoryStore) TouchCode(_ context.Context, code string, at time.Time) error {
	c, ok := s.state.codes[code]
	if !ok {
		return ErrEventNotFound
	}

	c.lastUsed = at
	s.state.codes[code] = c

	return nil
}

func (s *memoryStore) DeleteCodesUnusedSince(_ context.Context, before time.Time) (int64, error) {
	var n int64

	for code, c := range s.state.codes {
		if c.lastUsed.Before(before) {
			delete(s.state.codes, code)
			n++
		}
	}

	return n, nil
}

func (s *memoryStore) CreateEvent(ctx context.Context, event *Event, slots []SlotKey) (*Event, error) {
	if _, ok := s.state.codes[event.Code]; ok {
		return nil, ErrCodeTaken
	}

	now := s.tick()

	saved := *event
	saved.Id = uuid.NewString()
	saved.CreatedAt = now
	saved.UpdatedAt = now

	s.state.events[saved.Id] = saved
	s.state.codes[saved.Code] = memoryCode{eventId: saved.Id, lastUsed: now}
	s.state.slots[saved.Id] = SlotSet{}

	if err := s.InsertSlots(ctx, &saved, slots); err != nil {
		return nil, err
	}

	*event = saved

	return &saved, nil
}

func (s *memoryStore) GetEventByCode(_ context.Context, code string) (*Event, error) {
	c, ok := s.state.codes[code]
	if !ok {
		return nil, ErrEventNotFound
	}

	event, ok := s.state.events[c.eventId]
	if !ok {
		return nil, ErrEventNotFound
	}

	event.Code = code

	return &event, nil
}

func (s *memoryStore) UpdateEvent(_ context.Context, event *Event) error {
	stored, ok := s.state.events[event.Id]
	if !ok {
		return ErrEventNotFound
	}

	stored.Title = event.Title
	stored.Duration = event.Duration
	stored.TimeZone = event.TimeZone
	stored.UpdatedAt = s.tick()
	s.state.events[event.Id] = stored

	return nil
}

func (s *memoryStore) codeOf(eventId string) (string, bool) {
	for code, c := range s.state.codes {
		if c.eventId == eventId {
			return code, true
		}
	}

	return "", false
}

func (s *memoryStore) listEvents(keep func(Event) bool) []Event {
	var out []Event

	for _, event := range s.state.events {
		code, ok := s.codeOf(event.Id)
		if !ok || !keep(event) {
			continue
		}

		event.Code = code
		out = append(out, event)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out
}

func (s *memoryStore) ListEventsByCreator(_ context.Context, identity string) ([]Event, error) {
	return s.listEvents(func(e Event) bool { return e.CreatorId == identity }), nil
}

func (s *memoryStore) ListEventsByParticipant(_ context.Context, identity string) ([]Event, error) {
	joined := map[string]bool{}

	for _, p := range s.state.participants {
		if p.Identity == identity {
			joined[p.EventId] = true
		}
	}

	return s.listEvents(func(e Event) bool { return joined[e.Id] && e.CreatorId != identity }), nil
}

func (s *memoryStore) ListSlots(_ context.Context, event *Event) ([]SlotKey, error) {
	return s.state.slots[event.Id].Sorted(), nil
}

func (s *memoryStore) InsertSlots(_ context.Context, event *Event, slots []SlotKey) error {
	set, ok := s.state.slots[event.Id]
	if !ok {
		set = SlotSet{}
		s.state.slots[event.Id] = set
	}

	for _, slot := range slots {
		set[slot] = struct{}{}
	}

	return nil
}

func (s *memoryStore) DeleteSlots(_ context.Context, event *Event, slots []SlotKey) error {
	set := s.state.slots[event.Id]

	for _, slot := range slots {
		delete(set, slot)

		for id, p := range s.state.participants {
			if p.EventId == event.Id {
				delete(s.state.marks[id], slot)
			}
		}
	}

	return nil
}

func (s *memoryStore) ListParticipants(_ context.Context, eventId string) ([]Participant, error) {
	var out []Participant

	for _, p := range s.state.participants {
		if p.EventId == eventId {
			out = append(out, p)
		}
	}

	return OrderParticipants(out), nil
}

func (s *memoryStore) findParticipant(match func(Participant) bool) (*Participant, error) {
	for _, p := range s.state.participants {
		if match(p) {
			return &p, nil
		}
	}

	return nil, ErrParticipantNotFound
}

func (s *memoryStore) GetParticipant(_ context.Context, eventId string, identity string) (*Participant, error) {
	return s.findParticipant(func(p Participant) bool { return p.EventId == eventId && p.Identity == identity })
}

func (s *memoryStore) GetParticipantByName(_ context.Context, eventId string, displayName string) (*Participant, error) {
	return s.findParticipant(func(p Participant) bool { return p.EventId == eventId && p.DisplayName == displayName })
}

func (s *memoryStore) SaveParticipant(ctx context.Context, participant *Participant) (*Participant, bool, error) {
	now := s.tick()

	existing, err := s.GetParticipant(ctx, participant.EventId, participant.Identity)
	if err == nil {
		existing.DisplayName = participant.DisplayName
		existing.TimeZone = participant.TimeZone
		existing.UpdatedAt = now
		s.state.participants[existing.Id] = *existing

		return existing, false, nil
	}

	saved := *participant
	saved.Id = uuid.NewString()
	saved.CreatedAt = now
	saved.UpdatedAt = now
	s.state.participants[saved.Id] = saved

	return &saved, true, nil
}

func (s *memoryStore) DeleteParticipant(_ context.Context, participantId string) error {
	if _, ok := s.state.participants[participantId]; !ok {
		return ErrParticipantNotFound
	}

	delete(s.state.participants, participantId)
	delete(s.state.marks, participantId)

	return nil
}

func (s *memoryStore) ListMarks(_ context.Context, event *Event) ([]Mark, error) {
	var out []Mark

	for id, p := range s.state.participants {
		if p.EventId != event.Id {
			continue
		}

		for _, slot := range s.state.marks[id].Sorted() {
			out = append(out, Mark{ParticipantId: id, Slot: slot})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Slot.Less(out[j].Slot) })

	return out, nil
}

func (s *memoryStore) ListParticipantMarks(_ context.Context, _ *Event, participantId string) ([]SlotKey, error) {
	return s.state.marks[participantId].Sorted(), nil
}

func (s *memoryStore) ReplaceMarks(_ context.Context, event *Event, participantId string, slots []SlotKey) error {
	known := s.state.slots[event.Id]
	marks := SlotSet{}

	for _, slot := range slots {
		if known.Has(slot) {
			marks[slot] = struct{}{}
		}
	}

	s.state.marks[participantId] = marks

	return nil
}
