package core

import "time"

type SlotSet map[SlotKey]struct{}

// NewSlotSet builds a set, dropping duplicates.
func NewSlotSet(keys ...SlotKey) SlotSet {
	set := make(SlotSet, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}

	return set
}

func SlotSetFromRaw(kind EventKind, slots []time.Time) SlotSet {
	set := make(SlotSet, len(slots))
	for _, slot := range slots {
		set[SlotKeyFromRaw(kind, slot)] = struct{}{}
	}

	return set
}

func (s SlotSet) Has(key SlotKey) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the members in slot order.
func (s SlotSet) Sorted() []SlotKey {
	keys := make([]SlotKey, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}

	SortSlots(keys)

	return keys
}

// Diff is the change needed to turn an existing slot set into a submitted one.
type Diff struct {
	ToDelete []SlotKey
	ToAdd    []SlotKey
}

func (d Diff) Empty() bool {
	return len(d.ToDelete) == 0 && len(d.ToAdd) == 0
}

// Reconcile computes existing−submitted and submitted−existing. Slots in both
// sets appear in neither list, so their rows and availability marks survive
// the edit.
func Reconcile(existing SlotSet, submitted SlotSet) Diff {
	var diff Diff

	for key := range existing {
		if !submitted.Has(key) {
			diff.ToDelete = append(diff.ToDelete, key)
		}
	}

	for key := range submitted {
		if !existing.Has(key) {
			diff.ToAdd = append(diff.ToAdd, key)
		}
	}

	SortSlots(diff.ToDelete)
	SortSlots(diff.ToAdd)

	return diff
}

// Apply returns the set that results from applying the diff to s.
func (d Diff) Apply(s SlotSet) SlotSet {
	out := make(SlotSet, len(s)+len(d.ToAdd))
	for key := range s {
		out[key] = struct{}{}
	}

	for _, key := range d.ToDelete {
		delete(out, key)
	}

	for _, key := range d.ToAdd {
		out[key] = struct{}{}
	}

	return out
}
