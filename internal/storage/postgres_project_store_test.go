package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func uniqueViolationOn(constraint string) *pgconn.PgError {
	return &pgconn.PgError{Code: uniqueViolation, ConstraintName: constraint}
}

func TestMapWriteError_ConstraintIndexes(t *testing.T) {
	store := &PostgresProjectStore{logger: zap.NewNop()}

	tests := []struct {
		name       string
		constraint string
		wantField  string
	}{
		{"name index", constraintName, FieldName},
		{"live key index", constraintLiveKey, FieldLiveKey},
		{"test key index", constraintTestKey, FieldTestKey},
		{"proj key index", constraintProjKey, FieldProjKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.mapWriteError(uniqueViolationOn(tt.constraint), 7)

			var constraint *ConstraintError
			require.ErrorAs(t, err, &constraint)
			assert.Equal(t, tt.wantField, constraint.Field)
		})
	}
}

// Losing the race on the stream-version index must surface as a stale
// conflict; the soft-delete retry loop keys off exactly this.
func TestMapWriteError_StreamVersionRace(t *testing.T) {
	store := &PostgresProjectStore{logger: zap.NewNop()}

	err := store.mapWriteError(uniqueViolationOn(constraintStreamVersion), 4)

	var conflict *ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 4, conflict.Attempted)
	assert.Equal(t, 4, conflict.Current)
	assert.True(t, conflict.Stale())
}

func TestMapWriteError_UnrecognizedConstraint(t *testing.T) {
	store := &PostgresProjectStore{logger: zap.NewNop()}

	err := store.mapWriteError(uniqueViolationOn("uq_something_else"), 2)

	var constraint *ConstraintError
	require.ErrorAs(t, err, &constraint)
	assert.Equal(t, "uq_something_else", constraint.Field)
}

func TestMapWriteError_WrappedViolationUnwraps(t *testing.T) {
	store := &PostgresProjectStore{logger: zap.NewNop()}

	wrapped := fmt.Errorf("failed to insert stream row: %w", uniqueViolationOn(constraintName))
	err := store.mapWriteError(wrapped, 0)

	var constraint *ConstraintError
	require.ErrorAs(t, err, &constraint)
	assert.Equal(t, FieldName, constraint.Field)
}

func TestMapWriteError_PassesThroughOtherErrors(t *testing.T) {
	store := &PostgresProjectStore{logger: zap.NewNop()}

	// A different SQLSTATE is not a uniqueness problem.
	serialization := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(serialization), store.mapWriteError(serialization, 1))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, store.mapWriteError(plain, 1))
}
