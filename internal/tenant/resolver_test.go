package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/model"
	"github.com/perimetra/projects-service/internal/storage"
)

// MockDirectoryClient is a mock implementation of DirectoryClient
type MockDirectoryClient struct {
	mock.Mock
}

func (m *MockDirectoryClient) GetTenant(ctx context.Context, tenantID string) (*model.TenantContext, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantContext), args.Error(1)
}

// MockCache is a mock implementation of storage.Cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func TestResolve_CacheHit(t *testing.T) {
	directory := new(MockDirectoryClient)
	cache := new(MockCache)
	resolver := NewResolver(directory, cache, 5*time.Minute, zap.NewNop())
	ctx := context.Background()

	cached, err := json.Marshal(&model.TenantContext{
		TenantID:         "tenant-1",
		DatabaseUsername: "tenant_1_rw",
		DatabasePassword: "secret",
	})
	require.NoError(t, err)

	cache.On("Get", ctx, "tenant:credentials:tenant-1").Return(string(cached), nil)

	tc, err := resolver.Resolve(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant_1_rw", tc.DatabaseUsername)
	directory.AssertNotCalled(t, "GetTenant", mock.Anything, mock.Anything)
}

func TestResolve_CacheMissFetchesAndCaches(t *testing.T) {
	directory := new(MockDirectoryClient)
	cache := new(MockCache)
	resolver := NewResolver(directory, cache, 5*time.Minute, zap.NewNop())
	ctx := context.Background()

	tc := &model.TenantContext{
		TenantID:         "tenant-1",
		DatabaseUsername: "tenant_1_rw",
		DatabasePassword: "secret",
	}
	encoded, err := json.Marshal(tc)
	require.NoError(t, err)

	cache.On("Get", ctx, "tenant:credentials:tenant-1").Return("", storage.ErrNotFound)
	directory.On("GetTenant", ctx, "tenant-1").Return(tc, nil)
	cache.On("Set", ctx, "tenant:credentials:tenant-1", string(encoded), 5*time.Minute).Return(nil)

	resolved, err := resolver.Resolve(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, tc.DatabaseUsername, resolved.DatabaseUsername)
	cache.AssertExpectations(t)
}

func TestResolve_MalformedCacheEntryRefetches(t *testing.T) {
	directory := new(MockDirectoryClient)
	cache := new(MockCache)
	resolver := NewResolver(directory, cache, 5*time.Minute, zap.NewNop())
	ctx := context.Background()

	tc := &model.TenantContext{TenantID: "tenant-1", DatabaseUsername: "u", DatabasePassword: "p"}

	cache.On("Get", ctx, "tenant:credentials:tenant-1").Return("{not json", nil)
	directory.On("GetTenant", ctx, "tenant-1").Return(tc, nil)
	cache.On("Set", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	resolved, err := resolver.Resolve(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "u", resolved.DatabaseUsername)
	directory.AssertExpectations(t)
}

func TestResolve_DirectoryError(t *testing.T) {
	directory := new(MockDirectoryClient)
	cache := new(MockCache)
	resolver := NewResolver(directory, cache, 5*time.Minute, zap.NewNop())
	ctx := context.Background()

	directoryErr := errors.New("directory unavailable")
	cache.On("Get", ctx, mock.Anything).Return("", storage.ErrNotFound)
	directory.On("GetTenant", ctx, "tenant-1").Return(nil, directoryErr)

	_, err := resolver.Resolve(ctx, "tenant-1")
	assert.ErrorIs(t, err, directoryErr)
}

func TestInvalidate(t *testing.T) {
	directory := new(MockDirectoryClient)
	cache := new(MockCache)
	resolver := NewResolver(directory, cache, 5*time.Minute, zap.NewNop())
	ctx := context.Background()

	cache.On("Delete", ctx, "tenant:credentials:tenant-1").Return(nil)

	resolver.Invalidate(ctx, "tenant-1")
	cache.AssertExpectations(t)
}
