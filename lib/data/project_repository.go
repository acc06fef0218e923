package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// ProjectRepository defines the interface for project operations
type ProjectRepository interface {
	// CreateProject creates a project with the default fields plus any requested custom fields
	CreateProject(ctx context.Context, request *models.CreateProjectRequest, userID int64) (*models.Project, error)

	// GetProjects retrieves a page of projects
	GetProjects(ctx context.Context, filter models.ProjectFilter) (*models.ProjectListResponse, error)

	// GetProjectByID retrieves a project with its custom fields
	GetProjectByID(ctx context.Context, projectID int64) (*models.Project, error)

	// UpdateProject updates the provided fields of a project
	UpdateProject(ctx context.Context, projectID int64, request *models.UpdateProjectRequest, userID int64) (*models.Project, error)

	// DeleteProject deletes a project and returns the storage paths of its documents
	DeleteProject(ctx context.Context, projectID int64) ([]string, error)

	// CloneProject copies a project and its custom fields under the name "<name> (Copy)"
	CloneProject(ctx context.Context, projectID, userID int64) (*models.Project, error)
}

// ProjectDao implements ProjectRepository interface using PostgreSQL
type ProjectDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const projectColumns = `p.id, p.name, COALESCE(p.description, ''), COALESCE(p.file_name, ''),
		       p.is_active, p.is_archived, p.created_at, p.created_by, p.updated_at, p.updated_by`

func scanProject(scanner interface{ Scan(...interface{}) error }, project *models.Project) error {
	return scanner.Scan(
		&project.ProjectID,
		&project.Name,
		&project.Description,
		&project.FileName,
		&project.IsActive,
		&project.IsArchived,
		&project.CreatedAt,
		&project.CreatedBy,
		&project.UpdatedAt,
		&project.UpdatedBy,
	)
}

// CreateProject creates a new project and its fields in one transaction
func (dao *ProjectDao) CreateProject(ctx context.Context, request *models.CreateProjectRequest, userID int64) (*models.Project, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for project creation")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	project := &models.Project{}
	err = scanProject(tx.QueryRowContext(ctx, `
		INSERT INTO iam.projects AS p (name, description, file_name, is_active, is_archived, created_by, updated_by)
		VALUES ($1, $2, $3, TRUE, FALSE, $4, $4)
		RETURNING `+projectColumns,
		request.Name, request.Description, request.FileName, userID,
	), project)
	if isUniqueViolation(err) {
		dao.Logger.WithField("name", request.Name).Warn("Project name already exists")
		return nil, fmt.Errorf("project %s: %w", request.Name, ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"name":  request.Name,
			"error": err.Error(),
		}).Error("Failed to create project")
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	fields := models.DefaultCustomFields()
	for i, field := range request.CustomFields {
		fields = append(fields, models.CustomField{
			Name:            field.Name,
			Description:     field.Description,
			FieldType:       field.FieldType,
			IsRequired:      field.IsRequired,
			DefaultValue:    field.DefaultValue,
			Order:           len(models.DefaultCustomFields()) + i,
			RoleVisibility:  field.RoleVisibility,
			UserListOptions: field.UserListOptions,
			IsRemovable:     true,
		})
	}

	for _, field := range fields {
		created, err := insertCustomField(ctx, tx, project.ProjectID, field)
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("custom field %s: %w", field.Name, ErrConflict)
		}
		if err != nil {
			dao.Logger.WithFields(logrus.Fields{
				"project_id": project.ProjectID,
				"field_name": field.Name,
				"error":      err.Error(),
			}).Error("Failed to create custom field")
			return nil, fmt.Errorf("failed to create custom field: %w", err)
		}
		project.CustomFields = append(project.CustomFields, *created)
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit project creation transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id":  project.ProjectID,
		"name":        project.Name,
		"field_count": len(project.CustomFields),
		"created_by":  userID,
	}).Info("Successfully created project")

	return project, nil
}

// GetProjects retrieves a page of projects, newest first
func (dao *ProjectDao) GetProjects(ctx context.Context, filter models.ProjectFilter) (*models.ProjectListResponse, error) {
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	// A viewer sees a project when one of their roles is active on it and grants document.view
	where := `
		WHERE ($1 OR p.is_archived = FALSE)
		  AND ($2::bigint = 0 OR EXISTS (
			SELECT 1
			FROM iam.user_role ur
			JOIN iam.project_role pr ON pr.role_id = ur.role_id AND pr.project_id = p.id
			JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
			JOIN iam.role_permission rp ON rp.role_id = ur.role_id
			JOIN iam.permission pe ON pe.permission_id = rp.permission_id
			WHERE ur.user_id = $2 AND pe.permission_name = 'document.view'
		  ))`

	var total int
	err := dao.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM iam.projects p`+where,
		filter.IncludeArchived, filter.ViewerID).Scan(&total)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to count projects")
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}

	rows, err := dao.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM iam.projects p`+where+`
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $3 OFFSET $4`,
		filter.IncludeArchived, filter.ViewerID, pageSize, (page-1)*pageSize)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query projects")
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var project models.Project
		if err := scanProject(rows, &project); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan project row")
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating project rows")
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"viewer_id": filter.ViewerID,
		"page":      page,
		"count":     len(projects),
		"total":     total,
	}).Debug("Successfully retrieved projects")

	return &models.ProjectListResponse{
		Data:       projects,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: models.TotalPages(total, pageSize),
	}, nil
}

// GetProjectByID retrieves a specific project with its custom fields
func (dao *ProjectDao) GetProjectByID(ctx context.Context, projectID int64) (*models.Project, error) {
	project, err := getProject(ctx, dao.DB, projectID)
	if err == sql.ErrNoRows {
		dao.Logger.WithField("project_id", projectID).Warn("Project not found")
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to get project")
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	project.CustomFields, err = queryCustomFields(ctx, dao.DB, projectID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to get project custom fields")
		return nil, err
	}

	return project, nil
}

// UpdateProject updates an existing project. Nil request fields keep their stored value.
func (dao *ProjectDao) UpdateProject(ctx context.Context, projectID int64, request *models.UpdateProjectRequest, userID int64) (*models.Project, error) {
	project := &models.Project{}
	err := scanProject(dao.DB.QueryRowContext(ctx, `
		UPDATE iam.projects AS p
		SET name = COALESCE($2, p.name),
		    description = COALESCE($3, p.description),
		    file_name = COALESCE($4, p.file_name),
		    is_active = COALESCE($5, p.is_active),
		    is_archived = COALESCE($6, p.is_archived),
		    updated_by = $7,
		    updated_at = NOW()
		WHERE p.id = $1
		RETURNING `+projectColumns,
		projectID, request.Name, request.Description, request.FileName,
		request.IsActive, request.IsArchived, userID,
	), project)
	if err == sql.ErrNoRows {
		dao.Logger.WithField("project_id", projectID).Warn("Project not found for update")
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("project name: %w", ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to update project")
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id":  projectID,
		"is_archived": project.IsArchived,
		"updated_by":  userID,
	}).Info("Successfully updated project")

	return project, nil
}

// DeleteProject removes a project with its fields, role activations, restrictions and documents.
// The returned storage paths belong to documents that still have a blob in the bucket.
func (dao *ProjectDao) DeleteProject(ctx context.Context, projectID int64) ([]string, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for project deletion")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT storage_path FROM iam.documents
		WHERE project_id = $1 AND is_deleted = FALSE AND storage_path <> ''
	`, projectID)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query project documents")
		return nil, fmt.Errorf("failed to query project documents: %w", err)
	}
	paths, err := collectStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read project documents: %w", err)
	}

	cleanup := []string{
		`DELETE FROM iam.document_field_value WHERE document_id IN (SELECT id FROM iam.documents WHERE project_id = $1)`,
		`DELETE FROM iam.documents WHERE project_id = $1`,
		`DELETE FROM iam.field_value_restriction WHERE custom_field_id IN (SELECT id FROM iam.custom_field WHERE project_id = $1)`,
		`DELETE FROM iam.custom_field WHERE project_id = $1`,
		`DELETE FROM iam.project_role WHERE project_id = $1`,
	}
	for _, stmt := range cleanup {
		if _, err = tx.ExecContext(ctx, stmt, projectID); err != nil {
			dao.Logger.WithFields(logrus.Fields{
				"project_id": projectID,
				"error":      err.Error(),
			}).Error("Failed to remove project dependents")
			return nil, fmt.Errorf("failed to remove project dependents: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM iam.projects WHERE id = $1`, projectID)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to delete project")
		return nil, fmt.Errorf("failed to delete project: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		dao.Logger.WithField("project_id", projectID).Warn("Project not found for deletion")
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit project deletion transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id":     projectID,
		"document_count": len(paths),
	}).Info("Successfully deleted project")

	return paths, nil
}

// CloneProject copies a project and its custom fields. Documents and role activations are not copied.
func (dao *ProjectDao) CloneProject(ctx context.Context, projectID, userID int64) (*models.Project, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for project clone")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	clone := &models.Project{}
	err = scanProject(tx.QueryRowContext(ctx, `
		INSERT INTO iam.projects AS p (name, description, file_name, is_active, is_archived, created_by, updated_by)
		SELECT src.name || ' (Copy)', src.description, src.file_name, src.is_active, FALSE, $2, $2
		FROM iam.projects src
		WHERE src.id = $1
		RETURNING `+projectColumns,
		projectID, userID,
	), clone)
	if err == sql.ErrNoRows {
		dao.Logger.WithField("project_id", projectID).Warn("Project not found for clone")
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("project copy: %w", ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to clone project")
		return nil, fmt.Errorf("failed to clone project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO iam.custom_field (project_id, name, description, field_type, is_required, is_default,
		                              default_value, display_order, role_visibility, user_list_options, is_removable)
		SELECT $2, name, description, field_type, is_required, is_default,
		       default_value, display_order, role_visibility, user_list_options, is_removable
		FROM iam.custom_field
		WHERE project_id = $1
	`, projectID, clone.ProjectID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"clone_id":   clone.ProjectID,
			"error":      err.Error(),
		}).Error("Failed to copy custom fields")
		return nil, fmt.Errorf("failed to copy custom fields: %w", err)
	}

	clone.CustomFields, err = queryCustomFields(ctx, tx, clone.ProjectID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit project clone transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id": projectID,
		"clone_id":   clone.ProjectID,
		"created_by": userID,
	}).Info("Successfully cloned project")

	return clone, nil
}

func getProject(ctx context.Context, q queryer, projectID int64) (*models.Project, error) {
	project := &models.Project{}
	err := scanProject(q.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM iam.projects p
		WHERE p.id = $1
	`, projectID), project)
	if err != nil {
		return nil, err
	}
	return project, nil
}
