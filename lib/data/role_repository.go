package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// RoleRepository defines the interface for role data operations
type RoleRepository interface {
	// CreateRole creates a new role
	CreateRole(ctx context.Context, role *models.Role) (*models.Role, error)

	// GetRoles retrieves all active roles ordered by name
	GetRoles(ctx context.Context) ([]models.Role, error)

	// GetRoleByID retrieves a specific role by ID
	GetRoleByID(ctx context.Context, roleID int64) (*models.Role, error)

	// UpdateRole updates an existing role
	UpdateRole(ctx context.Context, roleID int64, role *models.Role) (*models.Role, error)

	// DeleteRole soft deletes a role and removes every association it has
	DeleteRole(ctx context.Context, roleID int64) error

	// GetRoleWithPermissions retrieves a role with its associated permissions
	GetRoleWithPermissions(ctx context.Context, roleID int64) (*models.RoleWithPermissions, error)
}

// RoleDao implements RoleRepository interface using PostgreSQL
type RoleDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// CreateRole creates a new role
func (dao *RoleDao) CreateRole(ctx context.Context, role *models.Role) (*models.Role, error) {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO iam.roles (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, role.RoleName, role.Description).Scan(&role.RoleID, &role.CreatedAt, &role.UpdatedAt)

	if isUniqueViolation(err) {
		dao.Logger.WithField("role_name", role.RoleName).Warn("Role name already exists")
		return nil, fmt.Errorf("role %s: %w", role.RoleName, ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_name": role.RoleName,
			"error":     err.Error(),
		}).Error("Failed to create role")
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"role_id":   role.RoleID,
		"role_name": role.RoleName,
	}).Info("Successfully created role")

	return role, nil
}

// GetRoles retrieves all roles that are not deleted
func (dao *RoleDao) GetRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at, updated_at
		FROM iam.roles
		WHERE is_deleted = FALSE
		ORDER BY name ASC
	`)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query roles")
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		err := rows.Scan(
			&role.RoleID,
			&role.RoleName,
			&role.Description,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			dao.Logger.WithError(err).Error("Failed to scan role row")
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating role rows")
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	dao.Logger.WithField("count", len(roles)).Debug("Successfully retrieved roles")

	return roles, nil
}

// GetRoleByID retrieves a specific role by ID
func (dao *RoleDao) GetRoleByID(ctx context.Context, roleID int64) (*models.Role, error) {
	var role models.Role
	err := dao.DB.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at, updated_at
		FROM iam.roles
		WHERE id = $1 AND is_deleted = FALSE
	`, roleID).Scan(
		&role.RoleID,
		&role.RoleName,
		&role.Description,
		&role.CreatedAt,
		&role.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("role_id", roleID).Warn("Role not found")
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to get role")
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// UpdateRole updates an existing role. Empty fields keep their stored value.
func (dao *RoleDao) UpdateRole(ctx context.Context, roleID int64, role *models.Role) (*models.Role, error) {
	var updated models.Role
	err := dao.DB.QueryRowContext(ctx, `
		UPDATE iam.roles
		SET name = COALESCE(NULLIF($1, ''), name),
		    description = COALESCE(NULLIF($2, ''), description),
		    updated_at = NOW()
		WHERE id = $3 AND is_deleted = FALSE
		RETURNING id, name, COALESCE(description, ''), created_at, updated_at
	`, role.RoleName, role.Description, roleID).Scan(
		&updated.RoleID,
		&updated.RoleName,
		&updated.Description,
		&updated.CreatedAt,
		&updated.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("role_id", roleID).Warn("Role not found for update")
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("role %s: %w", role.RoleName, ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to update role")
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"role_id":   roleID,
		"role_name": updated.RoleName,
	}).Info("Successfully updated role")

	return &updated, nil
}

// DeleteRole soft deletes a role after removing its permission, user, project and
// field restriction associations in one transaction
func (dao *RoleDao) DeleteRole(ctx context.Context, roleID int64) error {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for role deletion")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM iam.role_permission WHERE role_id = $1`,
		`DELETE FROM iam.user_role WHERE role_id = $1`,
		`DELETE FROM iam.project_role WHERE role_id = $1`,
		`DELETE FROM iam.field_value_restriction WHERE role_id = $1`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, roleID); err != nil {
			dao.Logger.WithFields(logrus.Fields{
				"role_id": roleID,
				"error":   err.Error(),
			}).Error("Failed to remove role associations")
			return fmt.Errorf("failed to remove role associations: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE iam.roles SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE
	`, roleID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to delete role")
		return fmt.Errorf("failed to delete role: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		dao.Logger.WithField("role_id", roleID).Warn("Role not found for deletion")
		return fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit role deletion transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithField("role_id", roleID).Info("Successfully deleted role and all assignments")

	return nil
}

// GetRoleWithPermissions retrieves a role with its associated permissions
func (dao *RoleDao) GetRoleWithPermissions(ctx context.Context, roleID int64) (*models.RoleWithPermissions, error) {
	role, err := dao.GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	rows, err := dao.DB.QueryContext(ctx, `
		SELECT p.permission_id, p.permission_name, COALESCE(p.description, ''), p.created_at, p.updated_at
		FROM iam.permission p
		JOIN iam.role_permission rp ON p.permission_id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.permission_name ASC
	`, roleID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to query role permissions")
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	permissions := []models.Permission{}
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

	return &models.RoleWithPermissions{
		Role:        *role,
		Permissions: permissions,
	}, nil
}
