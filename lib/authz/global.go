package authz

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// HasGlobalPermission reports whether any role held by the user grants permissionName.
// Unknown permission names resolve to false. A store error returns false with the error.
func (r *Resolver) HasGlobalPermission(ctx context.Context, userID int64, permissionName string) (bool, error) {
	if isSuperAdmin(userID) {
		return true, nil
	}
	if userID <= 0 {
		return false, nil
	}

	granted, err := r.Catalog.UserHasPermission(ctx, userID, permissionName)
	if err != nil {
		return false, fmt.Errorf("failed to resolve global permission %s: %w", permissionName, err)
	}

	r.Logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"permission": permissionName,
		"granted":    granted,
	}).Debug("Resolved global permission")

	return granted, nil
}
