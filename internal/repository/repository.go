// Package repository defines the durable store contract for signup records.
// The store is authoritative: the engine's local view is a cache that is
// optimistically mutated and periodically replaced from here.
package repository

import (
	"context"
	"time"

	"github.com/openmiclive/lineup/internal/domain"
)

// SignupRepository is the abstract store interface.
//
// UpdateStatus fails with a ConflictError on an illegal or concurrent
// transition and a NotFoundError when the id is gone. Connectivity
// problems surface as TransientIOError.
type SignupRepository interface {
	// ListSignups returns every record for one event, in no particular
	// order. Ordering is always recomputed by the caller.
	ListSignups(ctx context.Context, eventID string) ([]domain.Signup, error)

	// GetSignup returns a single record by id.
	GetSignup(ctx context.Context, id string) (*domain.Signup, error)

	// CreateSignup persists a new record. Only the public signup surface
	// creates records in production; the engine itself never does.
	CreateSignup(ctx context.Context, su *domain.Signup) (*domain.Signup, error)

	// UpdateStatus moves a record to a new status and returns the
	// authoritative post-write record, which may carry server-computed
	// fields such as started_at.
	UpdateStatus(ctx context.Context, id string, status domain.Status, note string) (*domain.Signup, error)

	// Reorder assigns a new priority_order. No renormalization is done;
	// the created_at tie-break preserves relative order on collisions.
	Reorder(ctx context.Context, id string, priorityOrder int) (*domain.Signup, error)

	// RecordNotification stores the outcome of an up-next notification
	// attempt on the record. notifyErr is empty on success.
	RecordNotification(ctx context.Context, id string, notifiedAt time.Time, notifyErr string) (*domain.Signup, error)

	// DeleteSignup destroys a record. Always permitted, regardless of
	// status; this is not a transition.
	DeleteSignup(ctx context.Context, id string) error
}
