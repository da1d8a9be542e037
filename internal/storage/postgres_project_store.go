package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/model"
)

// Unique index names declared in schema.sql. The storage engine reports the
// violated index on SQLSTATE 23505; the names are the contract that lets a
// low-level duplicate-key error be mapped to a business-meaningful one.
const (
	constraintStreamVersion = "uq_project_streams_tenant_stream_version"
	constraintName          = "uq_project_constraints_tenant_name"
	constraintLiveKey       = "uq_project_constraints_tenant_hashed_live_key"
	constraintTestKey       = "uq_project_constraints_tenant_hashed_test_key"
	constraintProjKey       = "uq_project_constraints_tenant_hashed_proj_key"
)

const uniqueViolation = "23505"

// latestSnapshotQuery selects the highest-version stream row per stream,
// restricted to live projects by joining the uniqueness projection. Deleted
// projects have no projection row, so they are excluded implicitly while
// their history rows remain for audit.
const latestSnapshotQuery = `
	SELECT DISTINCT ON (ps.stream_id)
		ps.id, ps.tenant_id, ps.stream_id, ps.version,
		ps.data, ps.event, ps.inserted_at, ps.inserted_by
	FROM project_streams ps
	JOIN project_unique_constraints puc
		ON puc.tenant_id = ps.tenant_id AND puc.project_id = ps.stream_id
	WHERE ps.tenant_id = $1 AND %s
	ORDER BY ps.stream_id, ps.version DESC`

// PostgresProjectStore implements ProjectStore over a tenant-scoped
// connection pool.
type PostgresProjectStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewProjectStore creates a project store backed by the given pool.
func NewProjectStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresProjectStore {
	return &PostgresProjectStore{
		pool:   pool,
		logger: logger,
	}
}

// Append creates a new stream at version 0 together with its projection row.
// Both inserts commit in one transaction so no other transaction can observe
// a stream without its uniqueness row.
func (s *PostgresProjectStore) Append(ctx context.Context, tenantID string, project *model.Project, event, actor string) error {
	now := time.Now().UTC()
	project.CreatedOn = now
	project.Deleted = false

	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to serialize project snapshot: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO project_streams (tenant_id, stream_id, version, data, event, inserted_at, inserted_by)
			VALUES ($1, $2, 0, $3, $4, $5, $6)`,
			tenantID, project.ProjectID, data, event, now, actor,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO project_unique_constraints (project_id, tenant_id, name, hashed_live_key, hashed_test_key, hashed_proj_key)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			project.ProjectID, tenantID, strings.ToLower(project.Name),
			project.HashedLiveKey, project.HashedTestKey, project.HashedProjKey,
		)
		return err
	})
	if err != nil {
		return s.mapWriteError(err, 0)
	}
	return nil
}

// AppendVersion appends a snapshot at exactly the given version and brings
// the projection row in line with it. A concurrent writer proposing the same
// version loses to the unique index on (tenant_id, stream_id, version); the
// loser surfaces as a ConcurrencyError.
func (s *PostgresProjectStore) AppendVersion(ctx context.Context, tenantID string, version int, project *model.Project, event, actor string) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to serialize project snapshot: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO project_streams (tenant_id, stream_id, version, data, event, inserted_at, inserted_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			tenantID, project.ProjectID, version, data, event, time.Now().UTC(), actor,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE project_unique_constraints
			SET name = $3, hashed_live_key = $4, hashed_test_key = $5, hashed_proj_key = $6
			WHERE tenant_id = $1 AND project_id = $2`,
			tenantID, project.ProjectID, strings.ToLower(project.Name),
			project.HashedLiveKey, project.HashedTestKey, project.HashedProjKey,
		)
		return err
	})
	if err != nil {
		return s.mapWriteError(err, version)
	}
	return nil
}

// DeleteCurrent appends the deleted snapshot and removes the projection row
// in one transaction. The stream's history stays intact; only the
// uniqueness row goes, which releases the name and key hashes for reuse.
func (s *PostgresProjectStore) DeleteCurrent(ctx context.Context, tenantID string, version int, project *model.Project, actor string) error {
	project.Deleted = true

	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to serialize project snapshot: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO project_streams (tenant_id, stream_id, version, data, event, inserted_at, inserted_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			tenantID, project.ProjectID, version, data, model.EventProjectDeleted, time.Now().UTC(), actor,
		)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM project_unique_constraints
			WHERE tenant_id = $1 AND project_id = $2`,
			tenantID, project.ProjectID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return s.mapWriteError(err, version)
	}
	return nil
}

// GetLatest reconstructs the current state of a live project as the
// highest-version row of its stream.
func (s *PostgresProjectStore) GetLatest(ctx context.Context, tenantID string, projectID uuid.UUID) (*model.Project, int, error) {
	query := fmt.Sprintf(latestSnapshotQuery, "puc.project_id = $2")
	return s.queryLatest(ctx, query, tenantID, projectID)
}

// GetLatestByName looks a live project up by its case-normalized name. The
// lookup is routed through the projection, never by scanning snapshots.
func (s *PostgresProjectStore) GetLatestByName(ctx context.Context, tenantID, name string) (*model.Project, int, error) {
	query := fmt.Sprintf(latestSnapshotQuery, "puc.name = $2")
	return s.queryLatest(ctx, query, tenantID, strings.ToLower(name))
}

// GetLatestByKeyHash looks a live project up by one of its hashed API keys.
func (s *PostgresProjectStore) GetLatestByKeyHash(ctx context.Context, tenantID string, purpose model.KeyPurpose, hash string) (*model.Project, int, error) {
	query := fmt.Sprintf(latestSnapshotQuery, hashColumn(purpose)+" = $2")
	return s.queryLatest(ctx, query, tenantID, hash)
}

// ListCurrent returns the latest snapshot of every live project in the
// tenant.
func (s *PostgresProjectStore) ListCurrent(ctx context.Context, tenantID string) ([]model.VersionedProject, error) {
	query := fmt.Sprintf(latestSnapshotQuery, "TRUE")
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query current projects: %w", err)
	}
	defer rows.Close()

	projects := make([]model.VersionedProject, 0)
	for rows.Next() {
		project, version, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, model.VersionedProject{Project: *project, Version: version})
	}
	return projects, rows.Err()
}

func (s *PostgresProjectStore) queryLatest(ctx context.Context, query string, args ...any) (*model.Project, int, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query project stream: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, 0, fmt.Errorf("failed to query project stream: %w", err)
		}
		return nil, 0, ErrNotFound
	}
	return scanSnapshot(rows)
}

func scanSnapshot(rows pgx.Rows) (*model.Project, int, error) {
	var stream model.ProjectStream
	if err := rows.Scan(
		&stream.ID,
		&stream.TenantID,
		&stream.StreamID,
		&stream.Version,
		&stream.Data,
		&stream.Event,
		&stream.InsertedAt,
		&stream.InsertedBy,
	); err != nil {
		return nil, 0, fmt.Errorf("failed to scan project stream row: %w", err)
	}

	var project model.Project
	if err := json.Unmarshal(stream.Data, &project); err != nil {
		return nil, 0, fmt.Errorf("failed to deserialize project snapshot at version %d: %w", stream.Version, err)
	}
	return &project, stream.Version, nil
}

// mapWriteError converts a unique violation into the typed error for the
// index that rejected the write. Anything else propagates unmapped.
func (s *PostgresProjectStore) mapWriteError(err error, attemptedVersion int) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case constraintStreamVersion:
		// Another writer took this version between our read and write. The
		// winner occupies exactly the attempted version, so it is also the
		// current one; no re-read is needed, and the conflict classifies as
		// stale.
		return &ConcurrencyError{Attempted: attemptedVersion, Current: attemptedVersion}
	case constraintName:
		return &ConstraintError{Field: FieldName}
	case constraintLiveKey:
		return &ConstraintError{Field: FieldLiveKey}
	case constraintTestKey:
		return &ConstraintError{Field: FieldTestKey}
	case constraintProjKey:
		return &ConstraintError{Field: FieldProjKey}
	default:
		s.logger.Warn("Unrecognized unique constraint violated",
			zap.String("constraint", pgErr.ConstraintName))
		return &ConstraintError{Field: pgErr.ConstraintName}
	}
}

func hashColumn(purpose model.KeyPurpose) string {
	switch purpose {
	case model.KeyPurposeLive:
		return "puc.hashed_live_key"
	case model.KeyPurposeTest:
		return "puc.hashed_test_key"
	default:
		return "puc.hashed_proj_key"
	}
}
