package core

import (
	"context"
	"time"
)

// Store is the storage collaborator seen by the scheduler. Implementations
// bound to a transaction see their own writes.
type Store interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	TouchCode(ctx context.Context, code string, at time.Time) error
	DeleteCodesUnusedSince(ctx context.Context, before time.Time) (int64, error)

	CreateEvent(ctx context.Context, event *Event, slots []SlotKey) (*Event, error)
	GetEventByCode(ctx context.Context, code string) (*Event, error)
	UpdateEvent(ctx context.Context, event *Event) error
	ListEventsByCreator(ctx context.Context, identity string) ([]Event, error)
	ListEventsByParticipant(ctx context.Context, identity string) ([]Event, error)

	ListSlots(ctx context.Context, event *Event) ([]SlotKey, error)
	InsertSlots(ctx context.Context, event *Event, slots []SlotKey) error
	DeleteSlots(ctx context.Context, event *Event, slots []SlotKey) error

	ListParticipants(ctx context.Context, eventId string) ([]Participant, error)
	GetParticipant(ctx context.Context, eventId string, identity string) (*Participant, error)
	GetParticipantByName(ctx context.Context, eventId string, displayName string) (*Participant, error)
	SaveParticipant(ctx context.Context, participant *Participant) (*Participant, bool, error)
	DeleteParticipant(ctx context.Context, participantId string) error

	ListMarks(ctx context.Context, event *Event) ([]Mark, error)
	ListParticipantMarks(ctx context.Context, event *Event, participantId string) ([]SlotKey, error)
	ReplaceMarks(ctx context.Context, event *Event, participantId string, slots []SlotKey) error
}

// Repository hands out stores. InTx runs fn in one all-or-nothing unit; View
// runs read-only work without a transaction.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
	View(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
