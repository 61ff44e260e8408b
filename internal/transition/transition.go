// Package transition holds the status state machine for signups.
//
// Legal transitions and their side effects are data, not conditionals: the
// table maps each status to the set of statuses it may move to, together
// with the effects the caller must run when the move commits. Adding a
// state is a table change.
package transition

import (
	"github.com/openmiclive/lineup/internal/domain"
	apperrors "github.com/openmiclive/lineup/internal/errors"
)

// Effect names a side effect the caller runs after a transition commits
// durably. The table never executes effects itself, and it only lists
// effects the caller dispatches; store-side work like stamping started_at
// or releasing the stage key belongs to the store.
type Effect int

const (
	// EffectRecordRotation feeds the completion into rotation bookkeeping.
	EffectRecordRotation Effect = iota + 1
	// EffectNotifyUpNext asks the notifier to tell the participant they
	// are up next. Failures are recorded, never block the transition.
	EffectNotifyUpNext
)

// Rule describes one legal move out of a status.
type Rule struct {
	To      domain.Status
	Effects []Effect
}

var table = map[domain.Status][]Rule{
	domain.StatusQueued: {
		{To: domain.StatusNext, Effects: []Effect{EffectNotifyUpNext}},
		{To: domain.StatusSkipped},
		{To: domain.StatusCancelled},
	},
	domain.StatusNext: {
		{To: domain.StatusSinging},
		{To: domain.StatusSkipped},
		{To: domain.StatusCancelled},
	},
	domain.StatusSinging: {
		{To: domain.StatusCompleted, Effects: []Effect{EffectRecordRotation}},
		{To: domain.StatusSkipped},
	},
	// Terminal states have no exits.
	domain.StatusCompleted: nil,
	domain.StatusSkipped:   nil,
	domain.StatusCancelled: nil,
}

// Lookup returns the rule for from→to, if legal.
func Lookup(from, to domain.Status) (Rule, bool) {
	for _, r := range table[from] {
		if r.To == to {
			return r, true
		}
	}
	return Rule{}, false
}

// Can reports whether from→to is a legal transition.
func Can(from, to domain.Status) bool {
	_, ok := Lookup(from, to)
	return ok
}

// Validate returns a ValidationError when from→to is illegal.
func Validate(from, to domain.Status) error {
	if !to.Valid() {
		return apperrors.NewValidationError("unknown status %q", to)
	}
	if !Can(from, to) {
		return apperrors.NewValidationError("cannot move from %s to %s", from, to)
	}
	return nil
}

// ValidateAgainstSet enforces set-level invariants on top of Validate:
// at most one signup per event may be singing. The caller must resolve the
// current performer before starting another.
func ValidateAgainstSet(all []domain.Signup, su *domain.Signup, to domain.Status) error {
	if err := Validate(su.Status, to); err != nil {
		return err
	}
	if to == domain.StatusSinging {
		for i := range all {
			other := &all[i]
			if other.ID != su.ID && other.EventID == su.EventID && other.Status == domain.StatusSinging {
				return apperrors.NewValidationError(
					"%s is already singing; finish or skip them first", other.Name)
			}
		}
	}
	return nil
}
