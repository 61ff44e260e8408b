// Package ordering derives queue order, the current performer and the next
// performer from an unordered signup set. Everything here is a pure
// function over already-loaded records; nothing is cached between reads.
package ordering

import (
	"sort"

	"github.com/openmiclive/lineup/internal/domain"
)

// Less is the queue sort key: priority_order ascending, then created_at
// ascending, then id for full determinism. A priority entry is just a
// signup with a lower priority_order; there is no separate bucket.
func Less(a, b *domain.Signup) bool {
	if a.PriorityOrder != b.PriorityOrder {
		return a.PriorityOrder < b.PriorityOrder
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// ActiveQueue returns the signups in queued or next, sorted for service.
func ActiveQueue(all []domain.Signup) []domain.Signup {
	var active []domain.Signup
	for i := range all {
		if all[i].IsActive() {
			active = append(active, all[i])
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return Less(&active[i], &active[j])
	})
	return active
}

// Current returns the single current performer, or nil. When the set
// momentarily holds more than one singing record (a store race), the one
// with the most recent started_at wins, ties broken by id, so every caller
// sees the same answer.
func Current(all []domain.Signup) *domain.Signup {
	var cur *domain.Signup
	for i := range all {
		su := &all[i]
		if su.Status != domain.StatusSinging {
			continue
		}
		if cur == nil || startedAfter(su, cur) {
			cur = su
		}
	}
	if cur == nil {
		return nil
	}
	return cur.Clone()
}

func startedAfter(a, b *domain.Signup) bool {
	switch {
	case a.StartedAt == nil && b.StartedAt == nil:
		return a.ID < b.ID
	case a.StartedAt == nil:
		return false
	case b.StartedAt == nil:
		return true
	case a.StartedAt.Equal(*b.StartedAt):
		return a.ID < b.ID
	default:
		return a.StartedAt.After(*b.StartedAt)
	}
}

// Next returns the signup holding the next slot, or nil. Promotion is a
// manual staff action, so this is never inferred from the queue head. If
// several records hold next, the first by sort key is reported.
func Next(all []domain.Signup) *domain.Signup {
	var next *domain.Signup
	for i := range all {
		su := &all[i]
		if su.Status != domain.StatusNext {
			continue
		}
		if next == nil || Less(su, next) {
			next = su
		}
	}
	if next == nil {
		return nil
	}
	return next.Clone()
}

// Position returns the 1-based queue position of the signup with the given
// id: one plus the count of active entries sorting strictly before it.
// Returns 0 when the id is absent from the active queue.
func Position(all []domain.Signup, id string) int {
	var target *domain.Signup
	for i := range all {
		if all[i].ID == id && all[i].IsActive() {
			target = &all[i]
			break
		}
	}
	if target == nil {
		return 0
	}
	pos := 1
	for i := range all {
		su := &all[i]
		if su.ID == target.ID || !su.IsActive() {
			continue
		}
		if Less(su, target) {
			pos++
		}
	}
	return pos
}
