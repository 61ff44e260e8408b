// Package engine owns the local view of one event's signup records and the
// machinery that keeps it usable between durable writes: the optimistic
// update coordinator and the refresh poller. No other component mutates
// the view.
package engine

import (
	"sync"

	"github.com/openmiclive/lineup/internal/domain"
)

// View is the single-owner in-memory store of signup records for one
// event, keyed by signup id. Reads hand out clones so callers can never
// reach the shared state behind the coordinator's back.
//
// The generation counter advances on every wholesale replacement; a
// mutation issued against an older generation has been superseded and must
// neither reconcile nor roll back.
type View struct {
	mu      sync.RWMutex
	eventID string
	signups map[string]*domain.Signup
	gen     uint64
}

func NewView(eventID string) *View {
	return &View{
		eventID: eventID,
		signups: make(map[string]*domain.Signup),
	}
}

func (v *View) EventID() string {
	return v.eventID
}

func (v *View) Get(id string) (*domain.Signup, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	su, ok := v.signups[id]
	if !ok {
		return nil, false
	}
	return su.Clone(), true
}

func (v *View) Put(su *domain.Signup) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.signups[su.ID] = su.Clone()
}

// GetWithGeneration returns the record together with the generation it
// was read at, under one lock.
func (v *View) GetWithGeneration(id string) (*domain.Signup, uint64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	su, ok := v.signups[id]
	if !ok {
		return nil, v.gen, false
	}
	return su.Clone(), v.gen, true
}

// PutIfGeneration stores the record only while the view still holds the
// given generation, so an optimistic write that raced a wholesale refresh
// can never clobber the fresher snapshot.
func (v *View) PutIfGeneration(su *domain.Signup, gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return false
	}
	v.signups[su.ID] = su.Clone()
	return true
}

// RemoveIfGeneration drops the record under the same condition.
func (v *View) RemoveIfGeneration(id string, gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return false
	}
	delete(v.signups, id)
	return true
}

func (v *View) Remove(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.signups, id)
}

// ReplaceAll swaps in a fresh record set from durable storage, superseding
// any unreconciled optimistic state.
func (v *View) ReplaceAll(signups []domain.Signup) {
	next := make(map[string]*domain.Signup, len(signups))
	for i := range signups {
		next[signups[i].ID] = signups[i].Clone()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.signups = next
	v.gen++
}

// Snapshot returns a copy of every record, in no particular order.
func (v *View) Snapshot() []domain.Signup {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Signup, 0, len(v.signups))
	for _, su := range v.signups {
		out = append(out, *su.Clone())
	}
	return out
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.signups)
}

func (v *View) Generation() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.gen
}
