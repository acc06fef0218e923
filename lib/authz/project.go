package authz

import (
	"context"
	"fmt"

	"agentdms/lib/constants"
	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// GetProjectPermissions resolves what the user may do on the project.
//
// The grant is the union of permissions attached to the effective roles, the
// intersection of the user's roles and the roles activated on the project. A user
// with no roles, a project with no roles, or an empty intersection yields no access.
func (r *Resolver) GetProjectPermissions(ctx context.Context, userID, projectID int64) (models.ProjectPermissions, error) {
	if isSuperAdmin(userID) {
		return fullAccess(projectID), nil
	}
	if userID <= 0 {
		return noAccess(projectID), nil
	}

	scope, err := r.Catalog.ProjectRoleScope(ctx, userID, projectID)
	if err != nil {
		return models.ProjectPermissions{ProjectID: projectID}, fmt.Errorf("failed to resolve project roles: %w", err)
	}

	log := r.Logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"project_id": projectID,
	})

	switch {
	case scope.UserRoleCount == 0:
		log.Debug("User holds no roles")
		return noAccess(projectID), nil
	case scope.ProjectRoleCount == 0:
		log.Debug("Project has no roles assigned")
		return noAccess(projectID), nil
	case len(scope.EffectiveRoleIDs) == 0:
		log.Debug("None of the user's roles are active on the project")
		return noAccess(projectID), nil
	}

	names, err := r.Catalog.PermissionNamesForRoles(ctx, scope.EffectiveRoleIDs)
	if err != nil {
		return models.ProjectPermissions{ProjectID: projectID}, fmt.Errorf("failed to resolve project permissions: %w", err)
	}

	perms := projectPermissions(projectID, names)
	log.WithFields(logrus.Fields{
		"effective_role_ids": scope.EffectiveRoleIDs,
		"permissions":        perms.Permissions,
	}).Debug("Resolved project permissions")

	return perms, nil
}

func projectPermissions(projectID int64, names []string) models.ProjectPermissions {
	perms := models.ProjectPermissions{
		ProjectID:   projectID,
		Permissions: make([]string, 0, len(names)),
	}
	perms.Permissions = append(perms.Permissions, names...)
	perms.CanView = perms.Has(constants.PermissionDocumentView)
	perms.CanEdit = perms.Has(constants.PermissionDocumentEdit)
	perms.CanDelete = perms.Has(constants.PermissionDocumentDelete)
	return perms
}

func fullAccess(projectID int64) models.ProjectPermissions {
	return models.ProjectPermissions{
		ProjectID:    projectID,
		CanView:      true,
		CanEdit:      true,
		CanDelete:    true,
		Unrestricted: true,
		Permissions:  append([]string(nil), documentPermissions...),
	}
}

func noAccess(projectID int64) models.ProjectPermissions {
	return models.ProjectPermissions{ProjectID: projectID, Permissions: []string{}}
}
