package core

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

// AvailabilityForParticipant lists a participant's marked slots in slot order.
func AvailabilityForParticipant(slots []SlotKey) []string {
	sorted := append([]SlotKey(nil), slots...)
	SortSlots(sorted)

	out := make([]string, 0, len(sorted))
	for _, slot := range sorted {
		out = append(out, slot.ISO())
	}

	return out
}

// OrderParticipants sorts participants by creation time, ties broken by id.
func OrderParticipants(participants []Participant) []Participant {
	ordered := append([]Participant(nil), participants...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}

		return ordered[i].Id < ordered[j].Id
	})

	return ordered
}

// Aggregate maps every slot of the event to the display names of the
// participants available in it. Slots nobody marked map to an empty list.
// Names follow participant creation order. Marks pointing at unknown slots or
// participants are logged and skipped.
func Aggregate(ctx context.Context, slots []SlotKey, participants []Participant, marks []Mark) map[string][]string {
	out := make(map[string][]string, len(slots))
	for _, slot := range slots {
		out[slot.ISO()] = []string{}
	}

	ordered := OrderParticipants(participants)

	rank := make(map[string]int, len(ordered))
	for i, p := range ordered {
		rank[p.Id] = i
	}

	sortedMarks := append([]Mark(nil), marks...)
	sort.SliceStable(sortedMarks, func(i, j int) bool {
		return rank[sortedMarks[i].ParticipantId] < rank[sortedMarks[j].ParticipantId]
	})

	type seenKey struct {
		participant string
		slot        SlotKey
	}

	seen := make(map[seenKey]struct{}, len(sortedMarks))

	for _, mark := range sortedMarks {
		iso := mark.Slot.ISO()

		names, ok := out[iso]
		if !ok {
			log.Ctx(ctx).Warn().Str("timeslot", iso).Msg("timeslot not found in availability map")
			continue
		}

		idx, ok := rank[mark.ParticipantId]
		if !ok {
			log.Ctx(ctx).Warn().Str("participant", mark.ParticipantId).Msg("participant not found for availability mark")
			continue
		}

		key := seenKey{participant: mark.ParticipantId, slot: mark.Slot}
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		out[iso] = append(names, ordered[idx].DisplayName)
	}

	return out
}
