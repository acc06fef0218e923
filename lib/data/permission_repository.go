package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// PermissionRepository defines the interface for permission data operations
type PermissionRepository interface {
	// CreatePermission creates a new permission
	CreatePermission(ctx context.Context, permission *models.Permission) (*models.Permission, error)

	// GetPermissions retrieves all permissions ordered by name
	GetPermissions(ctx context.Context) ([]models.Permission, error)

	// GetPermissionByID retrieves a specific permission by ID
	GetPermissionByID(ctx context.Context, permissionID int64) (*models.Permission, error)

	// UpdatePermission updates an existing permission
	UpdatePermission(ctx context.Context, permissionID int64, permission *models.Permission) (*models.Permission, error)

	// DeletePermission deletes a permission and every role-permission assignment of it
	DeletePermission(ctx context.Context, permissionID int64) error
}

// PermissionDao implements PermissionRepository interface using PostgreSQL
type PermissionDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// CreatePermission creates a new permission
func (dao *PermissionDao) CreatePermission(ctx context.Context, permission *models.Permission) (*models.Permission, error) {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO iam.permission (permission_name, description)
		VALUES ($1, $2)
		RETURNING permission_id, created_at, updated_at
	`, permission.PermissionName, permission.Description).Scan(
		&permission.PermissionID, &permission.CreatedAt, &permission.UpdatedAt)

	if isUniqueViolation(err) {
		dao.Logger.WithField("permission_name", permission.PermissionName).Warn("Permission name already exists")
		return nil, fmt.Errorf("permission %s: %w", permission.PermissionName, ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"permission_name": permission.PermissionName,
			"error":           err.Error(),
		}).Error("Failed to create permission")
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"permission_id":   permission.PermissionID,
		"permission_name": permission.PermissionName,
	}).Info("Successfully created permission")

	return permission, nil
}

// GetPermissions retrieves all permissions
func (dao *PermissionDao) GetPermissions(ctx context.Context) ([]models.Permission, error) {
	query := `
		SELECT permission_id, permission_name, COALESCE(description, ''), created_at, updated_at
		FROM iam.permission
		ORDER BY permission_name ASC
	`

	rows, err := dao.DB.QueryContext(ctx, query)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query permissions")
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var permissions []models.Permission
	for rows.Next() {
		var permission models.Permission
		err := rows.Scan(
			&permission.PermissionID,
			&permission.PermissionName,
			&permission.Description,
			&permission.CreatedAt,
			&permission.UpdatedAt,
		)
		if err != nil {
			dao.Logger.WithError(err).Error("Failed to scan permission row")
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating permission rows")
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}

	dao.Logger.WithField("count", len(permissions)).Debug("Successfully retrieved permissions")

	return permissions, nil
}

// GetPermissionByID retrieves a specific permission by ID
func (dao *PermissionDao) GetPermissionByID(ctx context.Context, permissionID int64) (*models.Permission, error) {
	var permission models.Permission
	err := dao.DB.QueryRowContext(ctx, `
		SELECT permission_id, permission_name, COALESCE(description, ''), created_at, updated_at
		FROM iam.permission
		WHERE permission_id = $1
	`, permissionID).Scan(
		&permission.PermissionID,
		&permission.PermissionName,
		&permission.Description,
		&permission.CreatedAt,
		&permission.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("permission_id", permissionID).Warn("Permission not found")
		return nil, fmt.Errorf("permission %d: %w", permissionID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to get permission")
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return &permission, nil
}

// UpdatePermission updates an existing permission. Empty fields keep their stored value.
func (dao *PermissionDao) UpdatePermission(ctx context.Context, permissionID int64, permission *models.Permission) (*models.Permission, error) {
	query := `
		UPDATE iam.permission
		SET permission_name = COALESCE(NULLIF($1, ''), permission_name),
		    description = COALESCE(NULLIF($2, ''), description),
		    updated_at = NOW()
		WHERE permission_id = $3
		RETURNING permission_id, permission_name, COALESCE(description, ''), created_at, updated_at
	`

	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for permission update")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var updated models.Permission
	err = tx.QueryRowContext(ctx, query,
		permission.PermissionName,
		permission.Description,
		permissionID,
	).Scan(
		&updated.PermissionID,
		&updated.PermissionName,
		&updated.Description,
		&updated.CreatedAt,
		&updated.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("permission_id", permissionID).Warn("Permission not found for update")
		return nil, fmt.Errorf("permission %d: %w", permissionID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("permission %s: %w", permission.PermissionName, ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to update permission")
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}

	// a rename can move the permission in or out of the document.* names behind the flags
	if err = refreshProjectRoleFlags(ctx, tx, 0); err != nil {
		dao.Logger.WithError(err).Error("Failed to refresh project role display flags")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit permission update transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"permission_id":   permissionID,
		"permission_name": updated.PermissionName,
	}).Info("Successfully updated permission")

	return &updated, nil
}

// DeletePermission removes a permission and all its role assignments
func (dao *PermissionDao) DeletePermission(ctx context.Context, permissionID int64) error {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for permission deletion")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// First, remove all role-permission assignments
	_, err = tx.ExecContext(ctx, `
		DELETE FROM iam.role_permission WHERE permission_id = $1
	`, permissionID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to remove role-permission assignments")
		return fmt.Errorf("failed to remove permission assignments: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM iam.permission WHERE permission_id = $1
	`, permissionID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to delete permission")
		return fmt.Errorf("failed to delete permission: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		dao.Logger.WithField("permission_id", permissionID).Warn("Permission not found for deletion")
		return fmt.Errorf("permission %d: %w", permissionID, ErrNotFound)
	}

	if err = refreshProjectRoleFlags(ctx, tx, 0); err != nil {
		dao.Logger.WithError(err).Error("Failed to refresh project role display flags")
		return err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit permission deletion transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithField("permission_id", permissionID).Info("Successfully deleted permission and all assignments")

	return nil
}
