// README: Shared error taxonomy; modules wrap these sentinels with detail.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or insufficient input.
	ErrValidation = errors.New("validation error")
	// ErrPreconditionFailed marks an operation invalid in the entity's
	// current state (e.g. broadcasting a non-pending request).
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrNotFound marks an absent referenced entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a uniqueness violation from concurrent duplicate
	// creation. Idempotent creators re-read and return the existing row
	// instead of surfacing this.
	ErrConflict = errors.New("conflict")
	// ErrUpstream marks an unreachable backing store or collaborator.
	ErrUpstream = errors.New("upstream unavailable")
	// ErrForbidden marks a caller identity that does not match the
	// patient scope of the operation.
	ErrForbidden = errors.New("forbidden")
)

// Wrap attaches human-readable detail to a sentinel, preserving errors.Is.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
