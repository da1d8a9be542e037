package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/model"
)

// IdentityClient talks to the identity/role service.
type IdentityClient struct {
	baseClient
}

// NewIdentityClient creates an identity service client.
func NewIdentityClient(baseURL string, timeout time.Duration, logger *zap.Logger) *IdentityClient {
	return &IdentityClient{newBaseClient(baseURL, timeout, logger)}
}

// GetUserRole returns the user's role within the tenant. The role gates
// whether a caller sees all projects or only the ones they are authorized
// for.
func (c *IdentityClient) GetUserRole(ctx context.Context, tenantID, email string) (model.Role, error) {
	var out struct {
		Role model.Role `json:"role"`
	}
	path := fmt.Sprintf("/tenants/%s/users/%s/role", pathEscape(tenantID), pathEscape(email))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return "", err
	}
	return out.Role, nil
}
