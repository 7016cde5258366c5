package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/nhle/slawatch/internal/store"
)

var (
	// ErrInvalidState is returned when an operation does not apply to the
	// task's current lifecycle status.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned for rejected input. Length failures carry a
	// *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyAcknowledged is returned when the task's current episode
	// already has a justification.
	ErrAlreadyAcknowledged = errors.New("already acknowledged")

	// ErrNotFound is returned for unknown or archived records.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable marks transient store failures, including an
	// open circuit breaker.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTimeout is returned when a caller-supplied deadline expires.
	ErrTimeout = errors.New("timed out")
)

// ValidationError reports a justification shorter than the policy minimum.
type ValidationError struct {
	MinLength int
	Got       int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: justification must be at least %d characters, got %d",
		ErrValidation, e.MinLength, e.Got)
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// SyncError reports a sync that did not evaluate every active task.
// Evaluated counts the tasks committed before the failure.
type SyncError struct {
	Evaluated int
	Failed    int
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %d evaluated, %d failed: %v", e.Evaluated, e.Failed, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// translate maps store and breaker failures onto the package sentinels,
// keeping the cause in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case store.IsUnavailable(err):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
