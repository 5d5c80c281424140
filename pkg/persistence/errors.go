// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrJourneyNotFound indicates a journey was not found by the given identifier.
	ErrJourneyNotFound = errors.New("journey not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrContactNotFound indicates a contact was not found.
	ErrContactNotFound = errors.New("contact not found")

	// ErrContactConflict indicates a conditional contact update lost the race:
	// the stored state/cursor no longer match what the writer observed.
	ErrContactConflict = errors.New("contact update conflict")

	// ErrJourneyNotLaunchable indicates the journey is not in a launchable status.
	ErrJourneyNotLaunchable = errors.New("journey not launchable")
)

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string // Operation being performed (e.g. "Tick", "Launch", "Stop")
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// ContactError wraps contact-related errors with additional context.
type ContactError struct {
	Op        string
	RunID     string
	ContactID string
	Err       error
}

func (e *ContactError) Error() string {
	return fmt.Sprintf("%s operation failed for contact %s in run %s: %v", e.Op, e.ContactID, e.RunID, e.Err)
}

func (e *ContactError) Unwrap() error {
	return e.Err
}

func (e *ContactError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewContactError creates a new contact error with context.
func NewContactError(op, runID, contactID string, err error) *ContactError {
	return &ContactError{Op: op, RunID: runID, ContactID: contactID, Err: err}
}

// IsContactConflict checks if an error indicates a lost conditional update.
func IsContactConflict(err error) bool {
	return errors.Is(err, ErrContactConflict)
}

// IsNotFound checks if an error indicates any missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJourneyNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrContactNotFound)
}
