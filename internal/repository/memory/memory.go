// Package memory provides an in-memory SignupRepository used by tests and
// the local demo. Behavior mirrors the redis implementation, including the
// error taxonomy, and supports one-shot failure injection.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openmiclive/lineup/internal/domain"
	apperrors "github.com/openmiclive/lineup/internal/errors"
	"github.com/openmiclive/lineup/internal/repository"
	"github.com/openmiclive/lineup/internal/transition"
)

type Op string

const (
	OpList    Op = "list"
	OpGet     Op = "get"
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpReorder Op = "reorder"
	OpNotify  Op = "notify"
	OpDelete  Op = "delete"
)

type Repository struct {
	mu        sync.Mutex
	signups   map[string]*domain.Signup
	nextOrder map[string]int
	failures  map[Op]error
	now       func() time.Time
}

var _ repository.SignupRepository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		signups:   make(map[string]*domain.Signup),
		nextOrder: make(map[string]int),
		failures:  make(map[Op]error),
		now:       time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// FailNext makes the next call of the given operation return err.
func (r *Repository) FailNext(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op] = err
}

func (r *Repository) takeFailure(op Op) error {
	if err, ok := r.failures[op]; ok {
		delete(r.failures, op)
		return err
	}
	return nil
}

func (r *Repository) ListSignups(_ context.Context, eventID string) ([]domain.Signup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(OpList); err != nil {
		return nil, err
	}
	var out []domain.Signup
	for _, su := range r.signups {
		if su.EventID == eventID {
			out = append(out, *su.Clone())
		}
	}
	return out, nil
}

func (r *Repository) GetSignup(_ context.Context, id string) (*domain.Signup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(OpGet); err != nil {
		return nil, err
	}
	su, ok := r.signups[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	return su.Clone(), nil
}

func (r *Repository) CreateSignup(_ context.Context, su *domain.Signup) (*domain.Signup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(OpCreate); err != nil {
		return nil, err
	}

	rec := su.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := r.signups[rec.ID]; exists {
		return nil, apperrors.NewConflictError(rec.ID, "signup already exists")
	}
	if rec.Status == "" {
		rec.Status = domain.StatusQueued
	}
	if rec.PriorityOrder == 0 {
		r.nextOrder[rec.EventID]++
		rec.PriorityOrder = r.nextOrder[rec.EventID]
	} else if rec.PriorityOrder > r.nextOrder[rec.EventID] {
		r.nextOrder[rec.EventID] = rec.PriorityOrder
	}
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	r.signups[rec.ID] = rec
	return rec.Clone(), nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, status domain.Status, note string) (*domain.Signup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(OpUpdate); err != nil {
		return nil, err
	}

	su, ok := r.signups[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	// The store rejects an illegal move as a conflict: from its side the
	// caller acted on a stale record.
	if !transition.Can(su.Status, status) {
		return nil, apperrors.NewConflictError(id, "cannot move from %s to %s", su.Status, status)
	}
	if status == domain.StatusSinging {
		for _, other := range r.signups {
			if other.ID != id && other.EventID == su.EventID && other.Status == domain.StatusSinging {
				return nil, apperrors.NewConflictError(id, "another signup is already singing")
			}
		}
	}

	su.Status = status
	if status == domain.StatusSinging {
		t := r.now()
		su.StartedAt = &t
	}
	if note != "" {
		su.Note = note
	}
	su.UpdatedAt = r.now()
	return su.Clone(), nil
}

func (r *Repository) Reorder(_ context.Context, id string, priorityOrder int) (*domain.Signup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(OpReorder); err != nil {
		return nil, err
	}

	su, ok := r.signups[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	su.PriorityOrder = priorityOrder
	su.UpdatedAt = r.now()
	return su.Clone(), nil
}

func (r *Repository) RecordNotification(_ context.Context, id string, notifiedAt time.Time, notifyErr string) (*domain.Signup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(OpNotify); err != nil {
		return nil, err
	}

	su, ok := r.signups[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	t := notifiedAt
	su.NotifiedAt = &t
	su.NotifyError = notifyErr
	su.UpdatedAt = r.now()
	return su.Clone(), nil
}

func (r *Repository) DeleteSignup(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(OpDelete); err != nil {
		return err
	}

	if _, ok := r.signups[id]; !ok {
		return apperrors.NewNotFoundError(id)
	}
	delete(r.signups, id)
	return nil
}
