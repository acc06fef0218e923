package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PermissionCatalog is the read model behind every authorization decision.
// All methods are read-only; an empty result is never an error.
type PermissionCatalog interface {
	// UserHasPermission reports whether any role held by the user grants the permission
	UserHasPermission(ctx context.Context, userID int64, permissionName string) (bool, error)

	// UserPermissionNames returns the union of permission names over every role the user holds
	UserPermissionNames(ctx context.Context, userID int64) ([]string, error)

	// UserRoleNames returns the names of every role the user holds
	UserRoleNames(ctx context.Context, userID int64) ([]string, error)

	// ProjectRoleScope counts the user's and the project's roles and intersects them
	ProjectRoleScope(ctx context.Context, userID, projectID int64) (models.RoleScope, error)

	// PermissionNamesForRoles returns the union of permission names granted by the roles
	PermissionNamesForRoles(ctx context.Context, roleIDs []int64) ([]string, error)

	// CustomFieldProjectID resolves the project owning a custom field
	CustomFieldProjectID(ctx context.Context, customFieldID int64) (int64, bool, error)

	// RestrictionsForRoles returns every restriction on the field held by one of the roles
	RestrictionsForRoles(ctx context.Context, roleIDs []int64, customFieldID int64) ([]models.FieldRestrictionRecord, error)
}

// PermissionCatalogDao implements PermissionCatalog interface using PostgreSQL
type PermissionCatalogDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// UserHasPermission checks the user's roles for the permission in a single EXISTS query
func (dao *PermissionCatalogDao) UserHasPermission(ctx context.Context, userID int64, permissionName string) (bool, error) {
	var exists bool
	err := dao.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM iam.user_role ur
			JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
			JOIN iam.role_permission rp ON rp.role_id = ur.role_id
			JOIN iam.permission p ON p.permission_id = rp.permission_id
			WHERE ur.user_id = $1 AND p.permission_name = $2
		)
	`, userID, permissionName).Scan(&exists)

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id":         userID,
			"permission_name": permissionName,
			"error":           err.Error(),
		}).Error("Failed to check global permission")
		return false, fmt.Errorf("failed to check global permission: %w", err)
	}

	return exists, nil
}

// UserPermissionNames returns every permission name granted through the user's roles
func (dao *PermissionCatalogDao) UserPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT DISTINCT p.permission_name
		FROM iam.user_role ur
		JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
		JOIN iam.role_permission rp ON rp.role_id = ur.role_id
		JOIN iam.permission p ON p.permission_id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.permission_name
	`, userID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to query user permissions")
		return nil, fmt.Errorf("failed to query user permissions: %w", err)
	}
	defer rows.Close()

	return dao.scanStrings(rows, "user permissions")
}

// UserRoleNames returns the names of the roles held by the user
func (dao *PermissionCatalogDao) UserRoleNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT r.name
		FROM iam.user_role ur
		JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, userID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to query user roles")
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	return dao.scanStrings(rows, "user roles")
}

// ProjectRoleScope reads the user's role count, the project's role count and their
// intersection in one round trip. The intersection is computed by the database.
func (dao *PermissionCatalogDao) ProjectRoleScope(ctx context.Context, userID, projectID int64) (models.RoleScope, error) {
	var scope models.RoleScope
	var effective []int64
	err := dao.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*)
			   FROM iam.user_role ur
			   JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
			  WHERE ur.user_id = $1),
			(SELECT COUNT(*)
			   FROM iam.project_role pr
			   JOIN iam.roles r ON r.id = pr.role_id AND r.is_deleted = FALSE
			  WHERE pr.project_id = $2),
			ARRAY(SELECT ur.role_id
			        FROM iam.user_role ur
			        JOIN iam.project_role pr ON pr.role_id = ur.role_id AND pr.project_id = $2
			        JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
			       WHERE ur.user_id = $1
			       ORDER BY ur.role_id)
	`, userID, projectID).Scan(&scope.UserRoleCount, &scope.ProjectRoleCount, pq.Array(&effective))

	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to resolve project role scope")
		return models.RoleScope{}, fmt.Errorf("failed to resolve project role scope: %w", err)
	}

	scope.EffectiveRoleIDs = effective
	return scope, nil
}

// PermissionNamesForRoles returns the distinct permission names granted by any of the roles
func (dao *PermissionCatalogDao) PermissionNamesForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	rows, err := dao.DB.QueryContext(ctx, `
		SELECT DISTINCT p.permission_name
		FROM iam.role_permission rp
		JOIN iam.permission p ON p.permission_id = rp.permission_id
		WHERE rp.role_id = ANY($1)
		ORDER BY p.permission_name
	`, pq.Array(roleIDs))
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_ids": roleIDs,
			"error":    err.Error(),
		}).Error("Failed to query role permissions")
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	return dao.scanStrings(rows, "role permissions")
}

// CustomFieldProjectID returns the owning project of a custom field; found is false when the field does not exist
func (dao *PermissionCatalogDao) CustomFieldProjectID(ctx context.Context, customFieldID int64) (int64, bool, error) {
	var projectID int64
	err := dao.DB.QueryRowContext(ctx, `
		SELECT project_id FROM iam.custom_field WHERE id = $1
	`, customFieldID).Scan(&projectID)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"custom_field_id": customFieldID,
			"error":           err.Error(),
		}).Error("Failed to resolve custom field project")
		return 0, false, fmt.Errorf("failed to resolve custom field project: %w", err)
	}

	return projectID, true, nil
}

// RestrictionsForRoles loads the restriction rows for the field keyed by any of the roles.
// Value lists are returned undecoded.
func (dao *PermissionCatalogDao) RestrictionsForRoles(ctx context.Context, roleIDs []int64, customFieldID int64) ([]models.FieldRestrictionRecord, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	rows, err := dao.DB.QueryContext(ctx, `
		SELECT fvr.id, fvr.role_id, r.name, fvr.restricted_values, fvr.is_allow_list
		FROM iam.field_value_restriction fvr
		JOIN iam.roles r ON r.id = fvr.role_id
		WHERE fvr.custom_field_id = $1 AND fvr.role_id = ANY($2)
		ORDER BY fvr.role_id, fvr.id
	`, customFieldID, pq.Array(roleIDs))
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"custom_field_id": customFieldID,
			"role_ids":        roleIDs,
			"error":           err.Error(),
		}).Error("Failed to query field value restrictions")
		return nil, fmt.Errorf("failed to query field value restrictions: %w", err)
	}
	defer rows.Close()

	var records []models.FieldRestrictionRecord
	for rows.Next() {
		var record models.FieldRestrictionRecord
		var rawValues sql.NullString
		if err := rows.Scan(&record.RestrictionID, &record.RoleID, &record.RoleName, &rawValues, &record.IsAllowList); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan field value restriction row")
			return nil, fmt.Errorf("failed to scan field value restriction: %w", err)
		}
		record.RawValues = rawValues.String
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating field value restriction rows")
		return nil, fmt.Errorf("error iterating field value restrictions: %w", err)
	}

	return records, nil
}

func (dao *PermissionCatalogDao) scanStrings(rows *sql.Rows, what string) ([]string, error) {
	values, err := collectStrings(rows)
	if err != nil {
		dao.Logger.WithError(err).Errorf("Failed to read %s rows", what)
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	return values, nil
}

// collectStrings reads a single text column from rows and closes them
func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}
