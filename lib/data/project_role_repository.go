package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// ProjectRoleRepository defines the interface for activating roles on projects
type ProjectRoleRepository interface {
	// AssignProjectRole activates a role on a project
	AssignProjectRole(ctx context.Context, projectID, roleID int64) (*models.ProjectRole, error)

	// GetProjectRoles retrieves the roles active on a project
	GetProjectRoles(ctx context.Context, projectID int64) ([]models.ProjectRole, error)

	// RemoveProjectRole deactivates a role on a project
	RemoveProjectRole(ctx context.Context, projectID, roleID int64) error
}

// ProjectRoleDao implements ProjectRoleRepository interface using PostgreSQL
type ProjectRoleDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// AssignProjectRole activates a role on a project. The can_* columns are written as a snapshot
// of the role's document permissions for display.
func (dao *ProjectRoleDao) AssignProjectRole(ctx context.Context, projectID, roleID int64) (*models.ProjectRole, error) {
	var projectRole models.ProjectRole
	err := dao.DB.QueryRowContext(ctx, `
		WITH assigned AS (
			INSERT INTO iam.project_role AS pr (project_id, role_id, can_view, can_edit, can_delete)
			SELECT $1, r.id,
			       EXISTS (`+roleGrants+`'document.view'),
			       EXISTS (`+roleGrants+`'document.edit'),
			       EXISTS (`+roleGrants+`'document.delete')
			FROM iam.roles r
			WHERE r.id = $2 AND r.is_deleted = FALSE
			ON CONFLICT (project_id, role_id) DO UPDATE
			SET can_view = EXCLUDED.can_view,
			    can_edit = EXCLUDED.can_edit,
			    can_delete = EXCLUDED.can_delete
			RETURNING pr.project_id, pr.role_id, pr.can_view, pr.can_edit, pr.can_delete, pr.created_at
		)
		SELECT a.project_id, a.role_id, r.name, a.can_view, a.can_edit, a.can_delete, a.created_at
		FROM assigned a
		JOIN iam.roles r ON r.id = a.role_id
	`, projectID, roleID).Scan(
		&projectRole.ProjectID,
		&projectRole.RoleID,
		&projectRole.RoleName,
		&projectRole.CanView,
		&projectRole.CanEdit,
		&projectRole.CanDelete,
		&projectRole.CreatedAt,
	)
	if err == sql.ErrNoRows {
		dao.Logger.WithField("role_id", roleID).Warn("Role not found for project assignment")
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if isForeignKeyViolation(err) {
		dao.Logger.WithField("project_id", projectID).Warn("Project not found for role assignment")
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"role_id":    roleID,
			"error":      err.Error(),
		}).Error("Failed to assign role to project")
		return nil, fmt.Errorf("failed to assign role to project: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id": projectID,
		"role_id":    roleID,
	}).Info("Successfully assigned role to project")

	return &projectRole, nil
}

// GetProjectRoles retrieves the roles active on a project, by name
func (dao *ProjectRoleDao) GetProjectRoles(ctx context.Context, projectID int64) ([]models.ProjectRole, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT pr.project_id, pr.role_id, r.name, pr.can_view, pr.can_edit, pr.can_delete, pr.created_at
		FROM iam.project_role pr
		JOIN iam.roles r ON r.id = pr.role_id AND r.is_deleted = FALSE
		WHERE pr.project_id = $1
		ORDER BY r.name ASC
	`, projectID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to query project roles")
		return nil, fmt.Errorf("failed to query project roles: %w", err)
	}
	defer rows.Close()

	projectRoles := []models.ProjectRole{}
	for rows.Next() {
		var projectRole models.ProjectRole
		err := rows.Scan(
			&projectRole.ProjectID,
			&projectRole.RoleID,
			&projectRole.RoleName,
			&projectRole.CanView,
			&projectRole.CanEdit,
			&projectRole.CanDelete,
			&projectRole.CreatedAt,
		)
		if err != nil {
			dao.Logger.WithError(err).Error("Failed to scan project role row")
			return nil, fmt.Errorf("failed to scan project role: %w", err)
		}
		projectRoles = append(projectRoles, projectRole)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating project role rows")
		return nil, fmt.Errorf("error iterating project roles: %w", err)
	}

	return projectRoles, nil
}

// RemoveProjectRole deactivates a role on a project
func (dao *ProjectRoleDao) RemoveProjectRole(ctx context.Context, projectID, roleID int64) error {
	result, err := dao.DB.ExecContext(ctx, `
		DELETE FROM iam.project_role
		WHERE project_id = $1 AND role_id = $2
	`, projectID, roleID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"role_id":    roleID,
			"error":      err.Error(),
		}).Error("Failed to remove role from project")
		return fmt.Errorf("failed to remove role from project: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("project role: %w", ErrNotFound)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id": projectID,
		"role_id":    roleID,
	}).Info("Successfully removed role from project")

	return nil
}

const roleGrants = `SELECT 1 FROM iam.role_permission rp
			       JOIN iam.permission p ON p.permission_id = rp.permission_id
			       WHERE rp.role_id = r.id AND p.permission_name = `
