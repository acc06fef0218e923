package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RolePermissionRepository defines the interface for role-permission relationship operations
type RolePermissionRepository interface {
	// AssignPermissionToRole assigns a permission to a role
	AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error

	// UnassignPermissionFromRole removes a permission from a role
	UnassignPermissionFromRole(ctx context.Context, roleID, permissionID int64) error

	// IsPermissionAssignedToRole checks if a permission is assigned to a role
	IsPermissionAssignedToRole(ctx context.Context, roleID, permissionID int64) (bool, error)
}

// RolePermissionDao implements RolePermissionRepository interface using PostgreSQL
type RolePermissionDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// AssignPermissionToRole assigns a permission to a role after checking both exist
func (dao *RolePermissionDao) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for permission assignment")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM iam.roles WHERE id = $1 AND is_deleted = FALSE) +
			(SELECT COUNT(*) FROM iam.permission WHERE permission_id = $2)
	`, roleID, permissionID).Scan(&count)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to validate role and permission")
		return fmt.Errorf("failed to validate role and permission: %w", err)
	}
	if count < 2 {
		dao.Logger.WithFields(logrus.Fields{
			"role_id":       roleID,
			"permission_id": permissionID,
		}).Warn("Role or permission not found")
		return fmt.Errorf("role or permission: %w", ErrNotFound)
	}

	// ON CONFLICT DO NOTHING keeps the assignment idempotent
	_, err = tx.ExecContext(ctx, `
		INSERT INTO iam.role_permission (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, roleID, permissionID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id":       roleID,
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to assign permission to role")
		return fmt.Errorf("failed to assign permission to role: %w", err)
	}

	if err = refreshProjectRoleFlags(ctx, tx, roleID); err != nil {
		dao.Logger.WithError(err).Error("Failed to refresh project role display flags")
		return err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit permission assignment transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"role_id":       roleID,
		"permission_id": permissionID,
	}).Info("Successfully assigned permission to role")

	return nil
}

// UnassignPermissionFromRole removes a permission from a role
func (dao *RolePermissionDao) UnassignPermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for permission unassignment")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM iam.role_permission
		WHERE role_id = $1 AND permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id":       roleID,
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to unassign permission from role")
		return fmt.Errorf("failed to unassign permission from role: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		dao.Logger.WithFields(logrus.Fields{
			"role_id":       roleID,
			"permission_id": permissionID,
		}).Warn("Permission was not assigned to role")
		return fmt.Errorf("permission assignment: %w", ErrNotFound)
	}

	if err = refreshProjectRoleFlags(ctx, tx, roleID); err != nil {
		dao.Logger.WithError(err).Error("Failed to refresh project role display flags")
		return err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit permission unassignment transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"role_id":       roleID,
		"permission_id": permissionID,
	}).Info("Successfully unassigned permission from role")

	return nil
}

// IsPermissionAssignedToRole checks if a permission is assigned to a role
func (dao *RolePermissionDao) IsPermissionAssignedToRole(ctx context.Context, roleID, permissionID int64) (bool, error) {
	var count int
	err := dao.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM iam.role_permission
		WHERE role_id = $1 AND permission_id = $2
	`, roleID, permissionID).Scan(&count)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id":       roleID,
			"permission_id": permissionID,
			"error":         err.Error(),
		}).Error("Failed to check permission assignment")
		return false, fmt.Errorf("failed to check permission assignment: %w", err)
	}

	return count > 0, nil
}

// refreshProjectRoleFlags rewrites the legacy can_view/can_edit/can_delete columns of every
// project_role row of the role from its current permissions, or of every row when roleID is 0.
// Nothing reads them for authorization.
func refreshProjectRoleFlags(ctx context.Context, tx *sql.Tx, roleID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE iam.project_role pr
		SET can_view = EXISTS (`+rolePermissionExists+`'document.view'),
		    can_edit = EXISTS (`+rolePermissionExists+`'document.edit'),
		    can_delete = EXISTS (`+rolePermissionExists+`'document.delete')
		WHERE $1::bigint = 0 OR pr.role_id = $1
	`, roleID)
	if err != nil {
		return fmt.Errorf("failed to refresh project role flags: %w", err)
	}
	return nil
}

const rolePermissionExists = `SELECT 1 FROM iam.role_permission rp
			JOIN iam.permission p ON p.permission_id = rp.permission_id
			WHERE rp.role_id = pr.role_id AND p.permission_name = `
