package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresProjectUserStore maintains the authorization mapping between
// users and projects for one tenant.
type PostgresProjectUserStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewProjectUserStore creates a project-user store backed by the given pool.
func NewProjectUserStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresProjectUserStore {
	return &PostgresProjectUserStore{
		pool:   pool,
		logger: logger,
	}
}

// GetAuthorizedProjectIDs returns the project ids the user may access.
func (s *PostgresProjectUserStore) GetAuthorizedProjectIDs(ctx context.Context, tenantID, email string) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT project_id FROM project_users
		WHERE tenant_id = $1 AND email = $2`,
		tenantID, email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query authorized projects: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddUserToProjects grants the user access to each listed project.
func (s *PostgresProjectUserStore) AddUserToProjects(ctx context.Context, tenantID, userID, email string, projectIDs []uuid.UUID, actor string) error {
	now := time.Now().UTC()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, projectID := range projectIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO project_users (project_id, tenant_id, user_id, email, inserted_at, inserted_by)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (project_id, user_id) DO NOTHING`,
				projectID, tenantID, userID, email, now, actor,
			)
			if err != nil {
				return fmt.Errorf("failed to add user to project %s: %w", projectID, err)
			}
		}
		return nil
	})
}

// RemoveUserFromProjects revokes the user's access to each listed project.
func (s *PostgresProjectUserStore) RemoveUserFromProjects(ctx context.Context, tenantID, userID string, projectIDs []uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM project_users
		WHERE tenant_id = $1 AND user_id = $2 AND project_id = ANY($3)`,
		tenantID, userID, projectIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to remove user from projects: %w", err)
	}
	return nil
}
