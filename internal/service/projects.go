package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/apikey"
	"github.com/perimetra/projects-service/internal/metrics"
	"github.com/perimetra/projects-service/internal/model"
	"github.com/perimetra/projects-service/internal/storage"
)

// maxDeleteAttempts bounds the soft-delete reconciliation loop. Deletion is
// the one mutation most likely to race with a concurrent update, so it alone
// retries automatically; every other mutation makes the caller resubmit with
// a fresh version.
const maxDeleteAttempts = 3

// ErrSubscriptionInactive is returned when the tenant's subscription does
// not permit creating projects.
var ErrSubscriptionInactive = errors.New("the subscription is not active")

// ErrProjectLimitReached is returned when the tenant is at its project
// limit.
var ErrProjectLimitReached = errors.New("the subscription's project limit has been reached")

// ErrInvalidKeyPrefix is returned when a presented API key carries no known
// purpose prefix.
var ErrInvalidKeyPrefix = errors.New("the API key does not have a valid prefix")

// StoreFactory builds a tenant-scoped project store. The production
// implementation routes through the tenant pool arena.
type StoreFactory func(ctx context.Context, tenantID string) (storage.ProjectStore, error)

// UserStoreFactory builds a tenant-scoped project-user store.
type UserStoreFactory func(ctx context.Context, tenantID string) (storage.ProjectUserStore, error)

// IdentityClient is the consumed contract of the identity/role service.
type IdentityClient interface {
	GetUserRole(ctx context.Context, tenantID, email string) (model.Role, error)
}

// SubscriptionsClient is the consumed contract of the subscription service.
type SubscriptionsClient interface {
	GetSubscriptionLimits(ctx context.Context, tenantID string) (*model.SubscriptionLimits, error)
}

// ProjectsService coordinates the project aggregate lifecycle: creation,
// update, soft-deletion, and API key rotation, plus the read paths.
type ProjectsService struct {
	stores        StoreFactory
	userStores    UserStoreFactory
	constraints   storage.ConstraintStore
	cache         storage.Cache
	identity      IdentityClient
	subscriptions SubscriptionsClient
	tenantIDTTL   time.Duration
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewProjectsService creates a new projects service.
func NewProjectsService(
	stores StoreFactory,
	userStores UserStoreFactory,
	constraints storage.ConstraintStore,
	cache storage.Cache,
	identity IdentityClient,
	subscriptions SubscriptionsClient,
	tenantIDTTL time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ProjectsService {
	return &ProjectsService{
		stores:        stores,
		userStores:    userStores,
		constraints:   constraints,
		cache:         cache,
		identity:      identity,
		subscriptions: subscriptions,
		tenantIDTTL:   tenantIDTTL,
		metrics:       m,
		logger:        logger,
	}
}

// CreateProject is the input for Create.
type CreateProject struct {
	Name        string
	Description string
	Enabled     bool
}

// UpdateProject is the input for Update.
type UpdateProject struct {
	Name        string
	Description string
	Enabled     bool
}

// KeySet carries the cleartext API keys returned exactly once, at creation.
type KeySet struct {
	LiveKey string
	TestKey string
	ProjKey string
}

// ProjectResult is a snapshot paired with its version and, for operations
// that mint credentials, the cleartext keys.
type ProjectResult struct {
	Project model.Project
	Version int
	Keys    *KeySet
	// NewKey is set by ResetKey only.
	NewKey string
}

// Create gates on the tenant's subscription, generates the purpose-scoped
// key set, and appends the new stream at version 0.
func (s *ProjectsService) Create(ctx context.Context, tenantID, actor string, req CreateProject) (*ProjectResult, error) {
	s.metrics.RequestsTotal.WithLabelValues("create", tenantID).Inc()

	limits, err := s.subscriptions.GetSubscriptionLimits(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription limits: %w", err)
	}
	if !limits.Active {
		return nil, ErrSubscriptionInactive
	}

	store, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	current, err := store.ListCurrent(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count current projects: %w", err)
	}
	if len(current) >= limits.MaxProjects {
		return nil, ErrProjectLimitReached
	}

	keys := apikey.GenerateSet()
	live, test, proj := keys[model.KeyPurposeLive], keys[model.KeyPurposeTest], keys[model.KeyPurposeProj]

	project := &model.Project{
		ProjectID:     uuid.New(),
		Name:          req.Name,
		Description:   req.Description,
		Enabled:       req.Enabled,
		HashedLiveKey: live.Hashed,
		HashedTestKey: test.Hashed,
		HashedProjKey: proj.Hashed,
		LiveKeyPrefix: live.Prefix,
		TestKeyPrefix: test.Prefix,
		ProjKeyPrefix: proj.Prefix,
	}

	if err := store.Append(ctx, tenantID, project, model.EventProjectCreated, actor); err != nil {
		return nil, s.observeWriteError("create", err)
	}

	s.logger.Info("Project created",
		zap.String("tenant_id", tenantID),
		zap.String("project_id", project.ProjectID.String()),
		zap.String("name", project.Name))

	return &ProjectResult{
		Project: *project,
		Version: 0,
		Keys:    &KeySet{LiveKey: live.Token, TestKey: test.Token, ProjKey: proj.Token},
	}, nil
}

// Update appends a new version of the project. Credentials, prefixes, and
// creation time are carried over from the current snapshot; a proposed state
// identical to the current one returns storage.ErrNoChanges without
// appending.
func (s *ProjectsService) Update(ctx context.Context, tenantID, actor string, projectID uuid.UUID, version int, req UpdateProject) (*ProjectResult, error) {
	s.metrics.RequestsTotal.WithLabelValues("update", tenantID).Inc()

	store, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	current, currentVersion, err := store.GetLatest(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}

	if err := storage.ValidateNextVersion(version, currentVersion); err != nil {
		s.metrics.ConcurrencyConflicts.WithLabelValues("update").Inc()
		return nil, err
	}

	proposed := *current
	proposed.Name = req.Name
	proposed.Description = req.Description
	proposed.Enabled = req.Enabled
	proposed.Deleted = false

	same, err := snapshotsEqual(current, &proposed)
	if err != nil {
		return nil, err
	}
	if same {
		return nil, storage.ErrNoChanges
	}

	if err := store.AppendVersion(ctx, tenantID, version, &proposed, model.EventProjectUpdated, actor); err != nil {
		return nil, s.observeWriteError("update", err)
	}

	s.logger.Info("Project updated",
		zap.String("tenant_id", tenantID),
		zap.String("project_id", projectID.String()),
		zap.Int("version", version))

	return &ProjectResult{Project: proposed, Version: version}, nil
}

// SoftDelete marks the project deleted and removes its uniqueness row,
// reconciling against concurrent writers with a bounded retry. Each attempt
// starts from a fresh read; only a race-caused version conflict is retried.
func (s *ProjectsService) SoftDelete(ctx context.Context, tenantID, actor string, projectID uuid.UUID) (*model.Project, error) {
	s.metrics.RequestsTotal.WithLabelValues("delete", tenantID).Inc()

	store, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var lastConflict *storage.ConcurrencyError
	for attempt := 0; attempt < maxDeleteAttempts; attempt++ {
		current, currentVersion, err := store.GetLatest(ctx, tenantID, projectID)
		if err != nil {
			return nil, err
		}

		proposed := *current
		err = store.DeleteCurrent(ctx, tenantID, currentVersion+1, &proposed, actor)
		if err == nil {
			s.invalidateKeyCache(ctx, current)
			s.logger.Info("Project deleted",
				zap.String("tenant_id", tenantID),
				zap.String("project_id", projectID.String()),
				zap.String("name", current.Name))
			return &proposed, nil
		}

		var conflict *storage.ConcurrencyError
		if errors.As(err, &conflict) && conflict.Stale() {
			// Another writer appended between our read and write; re-read
			// and try again.
			lastConflict = conflict
			s.metrics.DeleteRetries.Inc()
			s.logger.Warn("Soft delete lost a version race, retrying",
				zap.String("tenant_id", tenantID),
				zap.String("project_id", projectID.String()),
				zap.Int("attempt", attempt+1))
			continue
		}
		return nil, s.observeWriteError("delete", err)
	}

	s.metrics.DeleteExhausted.Inc()
	s.metrics.ConcurrencyConflicts.WithLabelValues("delete").Inc()
	return nil, fmt.Errorf("after %d attempts the version was still outdated, too many updates were applied in a short period, the project was not deleted: %w",
		maxDeleteAttempts, lastConflict)
}

// ResetKey rotates one purpose-scoped API key: a new stream version and
// projection hash, plus invalidation of the old hash's cached tenant
// mapping. The other purposes are untouched.
func (s *ProjectsService) ResetKey(ctx context.Context, tenantID, actor string, projectID uuid.UUID, purpose model.KeyPurpose, version int) (*ProjectResult, error) {
	s.metrics.RequestsTotal.WithLabelValues("reset_key", tenantID).Inc()

	store, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	current, currentVersion, err := store.GetLatest(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}

	if err := storage.ValidateNextVersion(version, currentVersion); err != nil {
		s.metrics.ConcurrencyConflicts.WithLabelValues("reset_key").Inc()
		return nil, err
	}

	oldHash := current.HashedKey(purpose)
	key := apikey.Generate(purpose)

	proposed := *current
	proposed.SetKey(purpose, key.Hashed, key.Prefix)

	if err := store.AppendVersion(ctx, tenantID, version, &proposed, model.EventAPIKeyReset, actor); err != nil {
		return nil, s.observeWriteError("reset_key", err)
	}

	if err := s.cache.Delete(ctx, tenantIDCacheKey(oldHash)); err != nil {
		s.logger.Warn("Failed to invalidate rotated key cache entry",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	s.logger.Info("API key reset",
		zap.String("tenant_id", tenantID),
		zap.String("project_id", projectID.String()),
		zap.String("purpose", string(purpose)),
		zap.Int("version", version))

	return &ProjectResult{Project: proposed, Version: version, NewKey: key.Token}, nil
}

// ProjectByName returns the live project with the given name.
func (s *ProjectsService) ProjectByName(ctx context.Context, tenantID, name string) (*model.VersionedProject, error) {
	store, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	project, version, err := store.GetLatestByName(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	return &model.VersionedProject{Project: *project, Version: version}, nil
}

// ProjectByKey classifies a presented API key by its purpose prefix and
// returns the live project it belongs to.
func (s *ProjectsService) ProjectByKey(ctx context.Context, tenantID, presentedKey string) (*model.VersionedProject, error) {
	purpose, ok := model.PurposeOfKey(presentedKey)
	if !ok {
		return nil, ErrInvalidKeyPrefix
	}

	store, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	project, version, err := store.GetLatestByKeyHash(ctx, tenantID, purpose, apikey.Hash(presentedKey))
	if err != nil {
		return nil, err
	}
	return &model.VersionedProject{Project: *project, Version: version}, nil
}

// ProjectsForUser returns the projects visible to the user. Users in the
// User role see only projects they are authorized for; every other role
// sees all live projects.
func (s *ProjectsService) ProjectsForUser(ctx context.Context, tenantID, email string) ([]model.VersionedProject, error) {
	role, err := s.identity.GetUserRole(ctx, tenantID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user role: %w", err)
	}

	store, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	all, err := store.ListCurrent(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if role != model.RoleUser {
		return all, nil
	}

	userStore, err := s.userStores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ids, err := userStore.GetAuthorizedProjectIDs(ctx, tenantID, email)
	if err != nil {
		return nil, err
	}

	authorized := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		authorized[id] = struct{}{}
	}

	visible := make([]model.VersionedProject, 0, len(ids))
	for _, vp := range all {
		if _, ok := authorized[vp.Project.ProjectID]; ok {
			visible = append(visible, vp)
		}
	}
	return visible, nil
}

// AllProjects returns every live project in the tenant.
func (s *ProjectsService) AllProjects(ctx context.Context, tenantID string) ([]model.VersionedProject, error) {
	store, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.ListCurrent(ctx, tenantID)
}

// TenantIDByKey resolves the tenant owning a presented API key. This sits
// on the authentication hot path and is the one lookup not scoped to a
// tenant a priori, so it is cached aggressively.
func (s *ProjectsService) TenantIDByKey(ctx context.Context, presentedKey string) (string, error) {
	purpose, ok := model.PurposeOfKey(presentedKey)
	if !ok {
		return "", ErrInvalidKeyPrefix
	}

	hash := apikey.Hash(presentedKey)
	cacheKey := tenantIDCacheKey(hash)

	if tenantID, err := s.cache.Get(ctx, cacheKey); err == nil {
		s.metrics.CacheHits.WithLabelValues("tenant_id").Inc()
		return tenantID, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("Tenant id cache lookup failed", zap.Error(err))
	}
	s.metrics.CacheMisses.WithLabelValues("tenant_id").Inc()

	tenantID, err := s.constraints.TenantIDByKeyHash(ctx, purpose, hash)
	if err != nil {
		return "", err
	}

	if err := s.cache.Set(ctx, cacheKey, tenantID, s.tenantIDTTL); err != nil {
		s.logger.Warn("Failed to cache tenant id for key hash", zap.Error(err))
	}
	return tenantID, nil
}

// invalidateKeyCache removes the hash-to-tenant cache entries for every
// purpose of a deleted project.
func (s *ProjectsService) invalidateKeyCache(ctx context.Context, project *model.Project) {
	for _, purpose := range model.KeyPurposes {
		hash := project.HashedKey(purpose)
		if hash == "" {
			continue
		}
		if err := s.cache.Delete(ctx, tenantIDCacheKey(hash)); err != nil {
			s.logger.Warn("Failed to invalidate key cache entry",
				zap.String("purpose", string(purpose)),
				zap.Error(err))
		}
	}
}

// observeWriteError records conflict metrics and passes the error through.
func (s *ProjectsService) observeWriteError(operation string, err error) error {
	var conflict *storage.ConcurrencyError
	var constraint *storage.ConstraintError
	switch {
	case errors.As(err, &conflict):
		s.metrics.ConcurrencyConflicts.WithLabelValues(operation).Inc()
	case errors.As(err, &constraint):
		s.metrics.ConstraintViolations.WithLabelValues(constraint.Field).Inc()
	}
	return err
}

// snapshotsEqual compares two snapshots by their canonical JSON form, the
// same representation the stream persists.
func snapshotsEqual(a, b *model.Project) (bool, error) {
	rawA, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to serialize current snapshot: %w", err)
	}
	rawB, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("failed to serialize proposed snapshot: %w", err)
	}

	var mapA, mapB map[string]any
	if err := json.Unmarshal(rawA, &mapA); err != nil {
		return false, err
	}
	if err := json.Unmarshal(rawB, &mapB); err != nil {
		return false, err
	}
	return reflect.DeepEqual(mapA, mapB), nil
}

func tenantIDCacheKey(hash string) string {
	return fmt.Sprintf("tenant:id:%s", hash)
}
