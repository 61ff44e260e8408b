package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for mutations against the durable store and the local view.
//
// ValidationError is rejected before the optimistic apply ever touches the
// local view. ConflictError and NotFoundError arrive from the store and
// trigger rollback of the optimistic change. TransientIOError covers
// storage/network unavailability and is tolerated for a bounded number of
// consecutive poll ticks.

type ValidationError struct {
	Reason string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

type ConflictError struct {
	ID     string
	Reason string
}

func NewConflictError(id, format string, args ...any) *ConflictError {
	return &ConflictError{ID: id, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.ID, e.Reason)
}

type NotFoundError struct {
	ID string
}

func NewNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("signup %s not found", e.ID)
}

type TransientIOError struct {
	Op  string
	Err error
}

func NewTransientIOError(op string, err error) *TransientIOError {
	return &TransientIOError{Op: op, Err: err}
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient io during %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsTransient(err error) bool {
	var te *TransientIOError
	return errors.As(err, &te)
}
