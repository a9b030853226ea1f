package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_InTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()

	slot := SpecificSlot(time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC))

	err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
		_, err := store.CreateEvent(ctx, &Event{Code: "abc", CreatorId: "creator", Kind: KindSpecific, TimeZone: "UTC"}, []SlotKey{slot})
		return err
	})
	require.NoError(t, err)

	failed := errors.New("boom")

	err = repo.InTx(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, "abc")
		if err != nil {
			return err
		}

		err = store.DeleteSlots(ctx, event, []SlotKey{slot})
		if err != nil {
			return err
		}

		return failed
	})
	require.ErrorIs(t, err, failed)

	err = repo.View(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, "abc")
		if err != nil {
			return err
		}

		slots, err := store.ListSlots(ctx, event)
		if err != nil {
			return err
		}

		assert.Equal(t, []SlotKey{slot}, slots)

		return nil
	})
	require.NoError(t, err)
}

func TestMemoryRepository_Participants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()

	err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
		_, created, err := store.SaveParticipant(ctx, &Participant{EventId: "e1", Identity: "alice", DisplayName: "Alice", TimeZone: "UTC"})
		require.NoError(t, err)
		assert.True(t, created)

		saved, created, err := store.SaveParticipant(ctx, &Participant{EventId: "e1", Identity: "alice", DisplayName: "Ally", TimeZone: "UTC"})
		require.NoError(t, err)
		assert.False(t, created)

		byName, err := store.GetParticipantByName(ctx, "e1", "Ally")
		require.NoError(t, err)
		assert.Equal(t, saved.Id, byName.Id)

		_, err = store.GetParticipantByName(ctx, "e1", "Alice")
		require.ErrorIs(t, err, ErrParticipantNotFound)

		require.NoError(t, store.DeleteParticipant(ctx, saved.Id))

		return store.DeleteParticipant(ctx, saved.Id)
	})
	require.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestMemoryRepository_CreateEventCodeTaken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()

	create := func(creator string) error {
		return repo.InTx(ctx, func(ctx context.Context, store Store) error {
			_, err := store.CreateEvent(ctx, &Event{Code: "team", CreatorId: creator, Kind: KindSpecific, TimeZone: "UTC"}, nil)
			return err
		})
	}

	require.NoError(t, create("alice"))
	require.ErrorIs(t, create("bob"), ErrCodeTaken)

	err := repo.View(ctx, func(ctx context.Context, store Store) error {
		event, err := store.GetEventByCode(ctx, "team")
		if err != nil {
			return err
		}

		assert.Equal(t, "alice", event.CreatorId)

		return nil
	})
	require.NoError(t, err)
}
