package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (pgxmock.PgxPoolIface, Repository) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return mock, NewRepository(mock)
}

func TestRepository_InTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name      string
		fn        func(ctx context.Context, store Store) error
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   string
	}{
		{
			name: "commits",
			fn: func(ctx context.Context, store Store) error {
				return store.TouchCode(ctx, "abc", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE url_codes SET last_used").
					WithArgs("abc", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "begin failure",
			fn: func(context.Context, Store) error {
				return nil
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin().WillReturnError(errors.New("begin error"))
			},
			wantErr: "failed to begin transaction",
		},
		{
			name: "callback failure rolls back",
			fn: func(context.Context, Store) error {
				return ErrNotCreator
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			wantErr: ErrNotCreator.Error(),
		},
		{
			name: "commit failure",
			fn: func(context.Context, Store) error {
				return nil
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectCommit().WillReturnError(errors.New("commit error"))
				mock.ExpectRollback()
			},
			wantErr: "failed to commit transaction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock, repo := newMockRepository(t)
			tt.mockSetup(mock)

			err := repo.InTx(ctx, tt.fn)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_CreateEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	duration := 30

	t.Run("specific", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		slots := []SlotKey{
			SpecificSlot(time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC)),
			SpecificSlot(time.Date(2024, time.June, 2, 9, 15, 0, 0, time.UTC)),
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO events").
			WithArgs("creator", "Planning", "SPECIFIC", &duration, "UTC").
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("event-1", now, now))
		mock.ExpectExec("INSERT INTO url_codes").
			WithArgs("Ab3dEf7h", "event-1").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO date_timeslots").
			WithArgs("event-1", []time.Time{
				time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC),
				time.Date(2024, time.June, 2, 9, 15, 0, 0, time.UTC),
			}).
			WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mock.ExpectCommit()

		var saved *Event

		err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
			var err error
			saved, err = store.CreateEvent(ctx, &Event{
				Code:      "Ab3dEf7h",
				CreatorId: "creator",
				Title:     "Planning",
				Kind:      KindSpecific,
				Duration:  &duration,
				TimeZone:  "UTC",
			}, slots)

			return err
		})

		require.NoError(t, err)
		assert.Equal(t, "event-1", saved.Id)
		assert.Equal(t, now, saved.CreatedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("generic", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO events").
			WithArgs("creator", "Weekly", "GENERIC", pgxmock.AnyArg(), "Europe/Paris").
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("event-2", now, now))
		mock.ExpectExec("INSERT INTO url_codes").
			WithArgs("weekly", "event-2").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO weekday_timeslots").
			WithArgs("event-2", []int{1, 3}, []int{540, 600}).
			WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mock.ExpectCommit()

		err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
			_, err := store.CreateEvent(ctx, &Event{
				Code:      "weekly",
				CreatorId: "creator",
				Title:     "Weekly",
				Kind:      KindGeneric,
				TimeZone:  "Europe/Paris",
			}, []SlotKey{GenericSlot(1, 540), GenericSlot(3, 600)})

			return err
		})

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate code rolls back", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO events").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("event-3", now, now))
		mock.ExpectExec("INSERT INTO url_codes").
			WithArgs("taken", "event-3").
			WillReturnError(errors.New("duplicate key value violates unique constraint"))
		mock.ExpectRollback()

		err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
			_, err := store.CreateEvent(ctx, &Event{Code: "taken", Kind: KindSpecific}, nil)
			return err
		})

		require.ErrorContains(t, err, "failed to insert url code")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("code clash", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO events").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("event-4", now, now))
		mock.ExpectExec("INSERT INTO url_codes").
			WithArgs("team", "event-4").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "url_codes_pkey"})
		mock.ExpectRollback()

		err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
			_, err := store.CreateEvent(ctx, &Event{Code: "team", Kind: KindSpecific}, nil)
			return err
		})

		require.ErrorIs(t, err, ErrCodeTaken)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_GetEventByCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	duration := 15

	columns := []string{"id", "code", "creator_id", "title", "kind", "duration", "time_zone", "created_at", "updated_at"}

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		want      *Event
		wantErr   error
	}{
		{
			name: "found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM events e JOIN url_codes u").
					WithArgs("abc").
					WillReturnRows(pgxmock.NewRows(columns).
						AddRow("event-1", "abc", "creator", "Planning", "SPECIFIC", &duration, "UTC", now, now))
			},
			want: &Event{
				Id:        "event-1",
				Code:      "abc",
				CreatorId: "creator",
				Title:     "Planning",
				Kind:      KindSpecific,
				Duration:  &duration,
				TimeZone:  "UTC",
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
		{
			name: "without duration",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM events e JOIN url_codes u").
					WithArgs("abc").
					WillReturnRows(pgxmock.NewRows(columns).
						AddRow("event-2", "abc", "creator", "Weekly", "GENERIC", nil, "Asia/Tokyo", now, now))
			},
			want: &Event{
				Id:        "event-2",
				Code:      "abc",
				CreatorId: "creator",
				Title:     "Weekly",
				Kind:      KindGeneric,
				TimeZone:  "Asia/Tokyo",
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
		{
			name: "not found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM events e JOIN url_codes u").
					WithArgs("abc").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrEventNotFound,
		},
		{
			name: "query failure",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("FROM events e JOIN url_codes u").
					WithArgs("abc").
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: errors.New("failed to get event by code: connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock, repo := newMockRepository(t)
			tt.mockSetup(mock)

			var got *Event

			err := repo.View(ctx, func(ctx context.Context, store Store) error {
				var err error
				got, err = store.GetEventByCode(ctx, "abc")

				return err
			})

			switch {
			case errors.Is(tt.wantErr, ErrEventNotFound):
				require.ErrorIs(t, err, ErrEventNotFound)
			case tt.wantErr != nil:
				require.EqualError(t, err, tt.wantErr.Error())
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_ListSlots(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("specific", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		first := time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT utc_timeslot FROM date_timeslots").
			WithArgs("event-1").
			WillReturnRows(pgxmock.NewRows([]string{"utc_timeslot"}).
				AddRow(first).
				AddRow(first.Add(15 * time.Minute)))

		var got []SlotKey

		err := repo.View(ctx, func(ctx context.Context, store Store) error {
			var err error
			got, err = store.ListSlots(ctx, &Event{Id: "event-1", Kind: KindSpecific})

			return err
		})

		require.NoError(t, err)
		assert.Equal(t, []SlotKey{SpecificSlot(first), SpecificSlot(first.Add(15 * time.Minute))}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("generic", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectQuery("SELECT weekday, local_minute FROM weekday_timeslots").
			WithArgs("event-2").
			WillReturnRows(pgxmock.NewRows([]string{"weekday", "local_minute"}).
				AddRow(0, 0).
				AddRow(6, 1425))

		var got []SlotKey

		err := repo.View(ctx, func(ctx context.Context, store Store) error {
			var err error
			got, err = store.ListSlots(ctx, &Event{Id: "event-2", Kind: KindGeneric})

			return err
		})

		require.NoError(t, err)
		assert.Equal(t, []SlotKey{GenericSlot(0, 0), GenericSlot(6, 1425)}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_DeleteSlots(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mock, repo := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM weekday_timeslots w USING unnest").
		WithArgs("event-2", []int{2}, []int{540}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
		// an empty set is a no-op and must not reach the database
		err := store.DeleteSlots(ctx, &Event{Id: "event-2", Kind: KindGeneric}, nil)
		if err != nil {
			return err
		}

		return store.DeleteSlots(ctx, &Event{Id: "event-2", Kind: KindGeneric}, []SlotKey{GenericSlot(2, 540)})
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Participants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

	t.Run("save reports insert", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO participants").
			WithArgs("event-1", "alice", "Alice", "UTC").
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at", "inserted"}).
				AddRow("participant-1", now, now, true))
		mock.ExpectCommit()

		var (
			saved   *Participant
			created bool
		)

		err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
			var err error
			saved, created, err = store.SaveParticipant(ctx, &Participant{
				EventId:     "event-1",
				Identity:    "alice",
				DisplayName: "Alice",
				TimeZone:    "UTC",
			})

			return err
		})

		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "participant-1", saved.Id)
		assert.Equal(t, "Alice", saved.DisplayName)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get by name not found", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectQuery("FROM participants WHERE event_id = \\$1 AND display_name = \\$2").
			WithArgs("event-1", "Nobody").
			WillReturnError(pgx.ErrNoRows)

		err := repo.View(ctx, func(ctx context.Context, store Store) error {
			_, err := store.GetParticipantByName(ctx, "event-1", "Nobody")
			return err
		})

		require.ErrorIs(t, err, ErrParticipantNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list keeps order", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		columns := []string{"id", "event_id", "identity", "display_name", "time_zone", "created_at", "updated_at"}
		mock.ExpectQuery("FROM participants WHERE event_id = \\$1 ORDER BY created_at, id").
			WithArgs("event-1").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("p-2", "event-1", "zed", "Zed", "UTC", now, now).
				AddRow("p-1", "event-1", "amy", "Amy", "UTC", now.Add(time.Minute), now))

		var got []Participant

		err := repo.View(ctx, func(ctx context.Context, store Store) error {
			var err error
			got, err = store.ListParticipants(ctx, "event-1")

			return err
		})

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Zed", got[0].DisplayName)
		assert.Equal(t, "Amy", got[1].DisplayName)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete missing", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM participants WHERE id = \\$1").
			WithArgs("participant-9").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectRollback()

		err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
			return store.DeleteParticipant(ctx, "participant-9")
		})

		require.ErrorIs(t, err, ErrParticipantNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_Marks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	slot := time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC)

	t.Run("list joins participants", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectQuery("FROM date_availability a JOIN date_timeslots t").
			WithArgs("event-1").
			WillReturnRows(pgxmock.NewRows([]string{"participant_id", "utc_timeslot"}).
				AddRow("p-1", slot).
				AddRow("p-2", slot))

		var got []Mark

		err := repo.View(ctx, func(ctx context.Context, store Store) error {
			var err error
			got, err = store.ListMarks(ctx, &Event{Id: "event-1", Kind: KindSpecific})

			return err
		})

		require.NoError(t, err)
		assert.Equal(t, []Mark{
			{ParticipantId: "p-1", Slot: SpecificSlot(slot)},
			{ParticipantId: "p-2", Slot: SpecificSlot(slot)},
		}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("participant marks generic", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectQuery("FROM weekday_availability a JOIN weekday_timeslots t").
			WithArgs("p-1").
			WillReturnRows(pgxmock.NewRows([]string{"participant_id", "weekday", "local_minute"}).
				AddRow("p-1", 5, 1080))

		var got []SlotKey

		err := repo.View(ctx, func(ctx context.Context, store Store) error {
			var err error
			got, err = store.ListParticipantMarks(ctx, &Event{Id: "event-2", Kind: KindGeneric}, "p-1")

			return err
		})

		require.NoError(t, err)
		assert.Equal(t, []SlotKey{GenericSlot(5, 1080)}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replace clears then inserts", func(t *testing.T) {
		t.Parallel()

		mock, repo := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM date_availability WHERE participant_id = \\$1").
			WithArgs("p-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec("INSERT INTO date_availability").
			WithArgs("p-1", "event-1", []time.Time{slot}).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
			return store.ReplaceMarks(ctx, &Event{Id: "event-1", Kind: KindSpecific}, "p-1", []SlotKey{SpecificSlot(slot)})
		})

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_DeleteCodesUnusedSince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mock, repo := newMockRepository(t)

	before := time.Date(2024, time.May, 18, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM url_codes WHERE last_used < \\$1").
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCommit()

	var n int64

	err := repo.InTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		n, err = store.DeleteCodesUnusedSince(ctx, before)

		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
