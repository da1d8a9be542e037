package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthorizedProjectIDs returns the project ids the user may access.
func (s *ProjectsService) AuthorizedProjectIDs(ctx context.Context, tenantID, email string) ([]uuid.UUID, error) {
	userStore, err := s.userStores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return userStore.GetAuthorizedProjectIDs(ctx, tenantID, email)
}

// UpdateUserProjects replaces a user's project authorizations: grants the
// added set, revokes the removed set.
func (s *ProjectsService) UpdateUserProjects(ctx context.Context, tenantID, userID, email string, added, removed []uuid.UUID, actor string) error {
	userStore, err := s.userStores(ctx, tenantID)
	if err != nil {
		return err
	}

	if len(added) > 0 {
		if err := userStore.AddUserToProjects(ctx, tenantID, userID, email, added, actor); err != nil {
			return err
		}
	}
	if len(removed) > 0 {
		if err := userStore.RemoveUserFromProjects(ctx, tenantID, userID, removed); err != nil {
			return err
		}
	}

	s.logger.Info("User project authorizations updated",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.Int("added", len(added)),
		zap.Int("removed", len(removed)))
	return nil
}
