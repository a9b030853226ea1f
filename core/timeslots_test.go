package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotKeyFromRaw(t *testing.T) {
	t.Parallel()

	t.Run("specific normalises to UTC", func(t *testing.T) {
		t.Parallel()

		local := time.Date(2024, time.June, 1, 11, 0, 0, 0, time.FixedZone("CEST", 2*3600))
		key := SlotKeyFromRaw(KindSpecific, local)

		assert.Equal(t, SpecificSlot(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)), key)
		assert.Equal(t, "2024-06-01T09:00:00Z", key.ISO())
	})

	t.Run("generic keeps weekday and wall clock", func(t *testing.T) {
		t.Parallel()

		// a Tuesday, 18:30 as written by the creator
		key := SlotKeyFromRaw(KindGeneric, time.Date(2025, time.March, 4, 18, 30, 0, 0, time.UTC))

		assert.Equal(t, GenericSlot(2, 18*60+30), key)
		assert.Equal(t, "2012-01-03T18:30:00", key.ISO())
	})
}

func TestSlotKeyFromDisplay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   EventKind
		value  time.Time
		want   SlotKey
		wantOk bool
	}{
		{
			name:   "specific",
			kind:   KindSpecific,
			value:  time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC),
			want:   SpecificSlot(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)),
			wantOk: true,
		},
		{
			name:   "generic sunday",
			kind:   KindGeneric,
			value:  time.Date(2012, time.January, 1, 0, 0, 0, 0, time.UTC),
			want:   GenericSlot(0, 0),
			wantOk: true,
		},
		{
			name:   "generic saturday late",
			kind:   KindGeneric,
			value:  time.Date(2012, time.January, 7, 23, 45, 0, 0, time.UTC),
			want:   GenericSlot(6, 23*60+45),
			wantOk: true,
		},
		{
			name:  "specific with sub-second remainder",
			kind:  KindSpecific,
			value: time.Date(2024, time.June, 1, 9, 0, 0, 999_000_000, time.UTC),
		},
		{
			name:  "specific with seconds",
			kind:  KindSpecific,
			value: time.Date(2024, time.June, 1, 9, 0, 30, 0, time.UTC),
		},
		{
			name:  "specific off interval",
			kind:  KindSpecific,
			value: time.Date(2024, time.June, 1, 9, 5, 0, 0, time.UTC),
		},
		{
			name:  "generic with seconds",
			kind:  KindGeneric,
			value: time.Date(2012, time.January, 2, 9, 0, 45, 0, time.UTC),
		},
		{
			name:  "generic off interval",
			kind:  KindGeneric,
			value: time.Date(2012, time.January, 2, 9, 10, 0, 0, time.UTC),
		},
		{
			name:  "generic before reference week",
			kind:  KindGeneric,
			value: time.Date(2011, time.December, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "generic after reference week",
			kind:  KindGeneric,
			value: time.Date(2012, time.January, 8, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := SlotKeyFromDisplay(tt.kind, tt.value)
			assert.Equal(t, tt.wantOk, ok)

			if tt.wantOk {
				assert.Equal(t, tt.want, got)
				assert.Equal(t, tt.want, mustDisplayRoundTrip(t, got))
			}
		})
	}
}

func mustDisplayRoundTrip(t *testing.T, key SlotKey) SlotKey {
	t.Helper()

	back, ok := SlotKeyFromDisplay(key.Kind, key.DisplayInstant())
	require.True(t, ok)

	return back
}

func TestSundayWeekday(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, SundayWeekday(0))
	assert.Equal(t, 6, SundayWeekday(5))
	assert.Equal(t, 0, SundayWeekday(6))
}

func TestSortSlots(t *testing.T) {
	t.Parallel()

	keys := []SlotKey{GenericSlot(3, 60), GenericSlot(0, 600), GenericSlot(3, 15), GenericSlot(0, 0)}
	SortSlots(keys)

	assert.Equal(t, []SlotKey{GenericSlot(0, 0), GenericSlot(0, 600), GenericSlot(3, 15), GenericSlot(3, 60)}, keys)
}

func TestToComparableInstant(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*3600)

	specific := SpecificSlot(time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.June, 2, 5, 0, 0, 0, tokyo).Unix(), ToComparableInstant(KindSpecific, specific, tokyo).Unix())
	assert.Equal(t, 5, ToComparableInstant(KindSpecific, specific, tokyo).Hour())

	// generic slots never move with the zone
	generic := GenericSlot(1, 9*60)
	assert.Equal(t, time.Date(2012, time.January, 2, 9, 0, 0, 0, time.UTC), ToComparableInstant(KindGeneric, generic, tokyo))
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{name: "utc", value: "2024-06-01T09:00:00Z", want: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)},
		{name: "offset", value: "2024-06-01T11:00:00+02:00", want: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)},
		{name: "naive", value: "2012-01-02T09:15:00", want: time.Date(2012, time.January, 2, 9, 15, 0, 0, time.UTC)},
		{name: "naive fractional", value: "2012-01-02T09:15:00.000", want: time.Date(2012, time.January, 2, 9, 15, 0, 0, time.UTC)},
		{name: "garbage", value: "tomorrow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTimestamp(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestLoadLocation(t *testing.T) {
	t.Parallel()

	loc, err := LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", loc.String())

	_, err = LoadLocation("")
	require.Error(t, err)

	_, err = LoadLocation("Nowhere/Special")
	require.Error(t, err)
}
