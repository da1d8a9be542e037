package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/model"
)

// TenantsClient talks to the tenant directory.
type TenantsClient struct {
	baseClient
}

// NewTenantsClient creates a tenant directory client.
func NewTenantsClient(baseURL string, timeout time.Duration, logger *zap.Logger) *TenantsClient {
	return &TenantsClient{newBaseClient(baseURL, timeout, logger)}
}

// GetTenant fetches a tenant's storage routing credentials.
func (c *TenantsClient) GetTenant(ctx context.Context, tenantID string) (*model.TenantContext, error) {
	var tc model.TenantContext
	path := fmt.Sprintf("/tenants/%s", pathEscape(tenantID))
	if err := c.getJSON(ctx, path, &tc); err != nil {
		return nil, err
	}
	if tc.TenantID == "" {
		tc.TenantID = tenantID
	}
	return &tc, nil
}
