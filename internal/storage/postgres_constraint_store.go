package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/model"
)

// PostgresConstraintStore reads the uniqueness projection across tenants.
// It runs on the service's own pool, not a tenant-scoped one: the caller of
// TenantIDByKeyHash does not yet know which tenant it belongs to.
type PostgresConstraintStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewConstraintStore creates a cross-tenant projection reader.
func NewConstraintStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresConstraintStore {
	return &PostgresConstraintStore{
		pool:   pool,
		logger: logger,
	}
}

// TenantIDByKeyHash resolves the tenant owning the project whose key of the
// given purpose hashes to hash. The hashed-key columns are unique per
// tenant and collisions across tenants are ruled out by the hash width, so
// at most one row matches.
func (s *PostgresConstraintStore) TenantIDByKeyHash(ctx context.Context, purpose model.KeyPurpose, hash string) (string, error) {
	query := fmt.Sprintf(`
		SELECT tenant_id FROM project_unique_constraints
		WHERE %s = $1`, projectionHashColumn(purpose))

	var tenantID string
	err := s.pool.QueryRow(ctx, query, hash).Scan(&tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve tenant by key hash: %w", err)
	}
	return tenantID, nil
}

func projectionHashColumn(purpose model.KeyPurpose) string {
	switch purpose {
	case model.KeyPurposeLive:
		return "hashed_live_key"
	case model.KeyPurposeTest:
		return "hashed_test_key"
	default:
		return "hashed_proj_key"
	}
}
