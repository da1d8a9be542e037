package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no live project exists for the given key.
var ErrNotFound = errors.New("not found")

// ErrNoChanges signals that a proposed update is identical to the current
// snapshot. Callers short-circuit without appending a new version.
var ErrNoChanges = errors.New("no changes were made from the previous version")

// ConcurrencyError is returned when a writer's expected version does not
// match the stored current version. Attempted > Current+1 means the caller
// is ahead of stored state; Attempted <= Current means the caller read a
// stale version and must re-read before retrying.
type ConcurrencyError struct {
	Attempted int
	Current   int
}

func (e *ConcurrencyError) Error() string {
	if e.Attempted-e.Current > 1 {
		return fmt.Sprintf("version %d is too high, the current resource is at version %d", e.Attempted, e.Current)
	}
	return fmt.Sprintf("version %d is outdated, the current resource is at version %d, re-request the resource to view the latest changes", e.Attempted, e.Current)
}

// Stale reports whether the conflict came from a stale read, the one case
// that is safely retriable after a fresh read.
func (e *ConcurrencyError) Stale() bool {
	return e.Attempted-e.Current <= 1
}

// Constrained fields enforced by the uniqueness projection.
const (
	FieldName    = "name"
	FieldLiveKey = "hashed_live_key"
	FieldTestKey = "hashed_test_key"
	FieldProjKey = "hashed_proj_key"
)

// ConstraintError is returned when a write violates one of the projection's
// per-tenant uniqueness rules. Field identifies which rule collided.
type ConstraintError struct {
	Field string
}

func (e *ConstraintError) Error() string {
	if e.Field == FieldName {
		return "the project name is in use by another project"
	}
	return fmt.Sprintf("the project violated a uniqueness constraint on %q", e.Field)
}

// ValidateNextVersion enforces that a writer observed the latest version
// before mutating: the proposed version must be exactly current+1.
func ValidateNextVersion(proposed, current int) error {
	if proposed != current+1 {
		return &ConcurrencyError{Attempted: proposed, Current: current}
	}
	return nil
}
