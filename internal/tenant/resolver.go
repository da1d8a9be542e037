// Package tenant resolves tenant identifiers to storage credentials and
// tenant-scoped connection pools.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/model"
	"github.com/perimetra/projects-service/internal/storage"
)

// DirectoryClient fetches tenant routing credentials from the external
// tenant directory.
type DirectoryClient interface {
	GetTenant(ctx context.Context, tenantID string) (*model.TenantContext, error)
}

// Resolver resolves a tenant id to its storage credentials, caching the
// result to avoid a directory round trip per request. Correctness does not
// depend on cache freshness beyond the TTL: stale credentials fail the
// downstream connection attempt and are invalidated there.
type Resolver struct {
	directory DirectoryClient
	cache     storage.Cache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewResolver creates a tenant context resolver.
func NewResolver(directory DirectoryClient, cache storage.Cache, cacheTTL time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// Resolve returns the tenant's routing credentials, from cache when
// available.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*model.TenantContext, error) {
	cacheKey := credentialsCacheKey(tenantID)
	if cached, err := r.cache.Get(ctx, cacheKey); err == nil {
		var tc model.TenantContext
		if err := json.Unmarshal([]byte(cached), &tc); err == nil {
			r.logger.Debug("Tenant credentials retrieved from cache",
				zap.String("tenant_id", tenantID))
			return &tc, nil
		}
		r.logger.Warn("Discarding malformed cached tenant credentials",
			zap.String("tenant_id", tenantID))
	} else if !errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("Tenant credentials cache lookup failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	tc, err := r.directory.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tenant from directory: %w", err)
	}

	if encoded, err := json.Marshal(tc); err == nil {
		if err := r.cache.Set(ctx, cacheKey, string(encoded), r.cacheTTL); err != nil {
			r.logger.Warn("Failed to cache tenant credentials",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
	}

	return tc, nil
}

// Invalidate drops the cached credentials so the next Resolve refetches.
func (r *Resolver) Invalidate(ctx context.Context, tenantID string) {
	if err := r.cache.Delete(ctx, credentialsCacheKey(tenantID)); err != nil {
		r.logger.Warn("Failed to invalidate tenant credentials cache",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}

func credentialsCacheKey(tenantID string) string {
	return fmt.Sprintf("tenant:credentials:%s", tenantID)
}
