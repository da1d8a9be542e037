package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/model"
)

// SubscriptionsClient talks to the subscription-limit service.
type SubscriptionsClient struct {
	baseClient
}

// NewSubscriptionsClient creates a subscription service client.
func NewSubscriptionsClient(baseURL string, timeout time.Duration, logger *zap.Logger) *SubscriptionsClient {
	return &SubscriptionsClient{newBaseClient(baseURL, timeout, logger)}
}

// GetSubscriptionLimits returns the tenant's subscription state, consulted
// before creating a project.
func (c *SubscriptionsClient) GetSubscriptionLimits(ctx context.Context, tenantID string) (*model.SubscriptionLimits, error) {
	var limits model.SubscriptionLimits
	path := fmt.Sprintf("/tenants/%s/subscription", pathEscape(tenantID))
	if err := c.getJSON(ctx, path, &limits); err != nil {
		return nil, err
	}
	return &limits, nil
}
