package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/perimetra/projects-service/internal/model"
)

// ProjectStore is the event stream store for one tenant's project
// aggregates plus the uniqueness projection maintained alongside it.
type ProjectStore interface {
	// Append creates a new stream at version 0 and its projection row in
	// one transaction.
	Append(ctx context.Context, tenantID string, project *model.Project, event, actor string) error

	// AppendVersion appends the snapshot at exactly the given version and
	// updates the projection row in one transaction. The version must have
	// been validated against the caller's read; the storage engine's unique
	// index on (tenant_id, stream_id, version) arbitrates races.
	AppendVersion(ctx context.Context, tenantID string, version int, project *model.Project, event, actor string) error

	// DeleteCurrent appends a deleted snapshot at the given version and
	// removes the projection row in one transaction.
	DeleteCurrent(ctx context.Context, tenantID string, version int, project *model.Project, actor string) error

	GetLatest(ctx context.Context, tenantID string, projectID uuid.UUID) (*model.Project, int, error)
	GetLatestByName(ctx context.Context, tenantID, name string) (*model.Project, int, error)
	GetLatestByKeyHash(ctx context.Context, tenantID string, purpose model.KeyPurpose, hash string) (*model.Project, int, error)
	ListCurrent(ctx context.Context, tenantID string) ([]model.VersionedProject, error)
}

// ConstraintStore reads the uniqueness projection outside any one tenant's
// scope. Credential-to-tenant resolution is the single lookup that cannot be
// tenant-scoped a priori: the caller presents only an API key.
type ConstraintStore interface {
	TenantIDByKeyHash(ctx context.Context, purpose model.KeyPurpose, hash string) (string, error)
}

// ProjectUserStore reads and maintains the authorization mapping between
// users and projects.
type ProjectUserStore interface {
	GetAuthorizedProjectIDs(ctx context.Context, tenantID, email string) ([]uuid.UUID, error)
	AddUserToProjects(ctx context.Context, tenantID, userID, email string, projectIDs []uuid.UUID, actor string) error
	RemoveUserFromProjects(ctx context.Context, tenantID, userID string, projectIDs []uuid.UUID) error
}

// Cache is an injected key-value capability with TTL-based expiry. Entries
// are idempotent facts; writers never merge, so no exclusive access is
// needed beyond the implementation's own synchronization.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
