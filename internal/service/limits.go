package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// limitEnforcerActor is the provenance recorded on limit-enforcement
// deletions.
const limitEnforcerActor = "SubscriptionEnforcer"

// TenantLimit is one tenant's allowed project count.
type TenantLimit struct {
	TenantID    string
	MaxProjects int
}

// EnforceResourceLimits soft-deletes the newest projects of any tenant over
// its limit and reports the surviving project ids per tenant. Deletions run
// through the regular soft-delete path, so key caches are invalidated and
// stream history is preserved.
func (s *ProjectsService) EnforceResourceLimits(ctx context.Context, limits []TenantLimit) (map[string][]uuid.UUID, error) {
	remaining := make(map[string][]uuid.UUID, len(limits))

	for _, limit := range limits {
		store, err := s.stores(ctx, limit.TenantID)
		if err != nil {
			return nil, err
		}

		projects, err := store.ListCurrent(ctx, limit.TenantID)
		if err != nil {
			return nil, err
		}

		if len(projects) <= limit.MaxProjects {
			ids := make([]uuid.UUID, 0, len(projects))
			for _, vp := range projects {
				ids = append(ids, vp.Project.ProjectID)
			}
			remaining[limit.TenantID] = ids
			continue
		}

		// Newest first; the overage loses.
		sort.Slice(projects, func(i, j int) bool {
			return projects[i].Project.CreatedOn.After(projects[j].Project.CreatedOn)
		})

		overage := len(projects) - limit.MaxProjects
		for _, vp := range projects[:overage] {
			if _, err := s.SoftDelete(ctx, limit.TenantID, limitEnforcerActor, vp.Project.ProjectID); err != nil {
				return nil, err
			}
			s.logger.Info("Project removed by resource limit enforcement",
				zap.String("tenant_id", limit.TenantID),
				zap.String("project_id", vp.Project.ProjectID.String()))
		}

		ids := make([]uuid.UUID, 0, limit.MaxProjects)
		for _, vp := range projects[overage:] {
			ids = append(ids, vp.Project.ProjectID)
		}
		remaining[limit.TenantID] = ids
	}

	return remaining, nil
}
