package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// CustomFieldRepository defines the interface for project custom field operations
type CustomFieldRepository interface {
	// GetCustomFields retrieves the fields of a project in display order
	GetCustomFields(ctx context.Context, projectID int64) ([]models.CustomField, error)

	// AddCustomField adds a removable field to a project
	AddCustomField(ctx context.Context, projectID int64, request *models.CreateCustomFieldRequest) (*models.CustomField, error)

	// DeleteCustomField removes a field with its values and restrictions. Default fields return ErrNotRemovable.
	DeleteCustomField(ctx context.Context, projectID, fieldID int64) error
}

// CustomFieldDao implements CustomFieldRepository interface using PostgreSQL
type CustomFieldDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const customFieldColumns = `id, project_id, name, COALESCE(description, ''), field_type, is_required, is_default,
		       COALESCE(default_value, ''), display_order, COALESCE(role_visibility, ''),
		       COALESCE(user_list_options, ''), is_removable, created_at, updated_at`

func scanCustomField(scanner interface{ Scan(...interface{}) error }, field *models.CustomField) error {
	return scanner.Scan(
		&field.FieldID,
		&field.ProjectID,
		&field.Name,
		&field.Description,
		&field.FieldType,
		&field.IsRequired,
		&field.IsDefault,
		&field.DefaultValue,
		&field.Order,
		&field.RoleVisibility,
		&field.UserListOptions,
		&field.IsRemovable,
		&field.CreatedAt,
		&field.UpdatedAt,
	)
}

// GetCustomFields retrieves all fields of a project
func (dao *CustomFieldDao) GetCustomFields(ctx context.Context, projectID int64) ([]models.CustomField, error) {
	fields, err := queryCustomFields(ctx, dao.DB, projectID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to get custom fields")
		return nil, err
	}
	return fields, nil
}

// AddCustomField appends a field to a project. Added fields are never default fields.
func (dao *CustomFieldDao) AddCustomField(ctx context.Context, projectID int64, request *models.CreateCustomFieldRequest) (*models.CustomField, error) {
	field, err := insertCustomField(ctx, dao.DB, projectID, models.CustomField{
		Name:            request.Name,
		Description:     request.Description,
		FieldType:       request.FieldType,
		IsRequired:      request.IsRequired,
		DefaultValue:    request.DefaultValue,
		Order:           request.Order,
		RoleVisibility:  request.RoleVisibility,
		UserListOptions: request.UserListOptions,
		IsRemovable:     true,
	})
	if isForeignKeyViolation(err) {
		dao.Logger.WithField("project_id", projectID).Warn("Project not found for custom field")
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("custom field %s: %w", request.Name, ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"field_name": request.Name,
			"error":      err.Error(),
		}).Error("Failed to add custom field")
		return nil, fmt.Errorf("failed to add custom field: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id": projectID,
		"field_id":   field.FieldID,
		"field_type": field.FieldType,
	}).Info("Successfully added custom field")

	return field, nil
}

// DeleteCustomField removes a removable field of a project
func (dao *CustomFieldDao) DeleteCustomField(ctx context.Context, projectID, fieldID int64) error {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for custom field deletion")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var removable bool
	err = tx.QueryRowContext(ctx, `
		SELECT is_removable FROM iam.custom_field
		WHERE id = $1 AND project_id = $2
		FOR UPDATE
	`, fieldID, projectID).Scan(&removable)
	if err == sql.ErrNoRows {
		return fmt.Errorf("custom field %d: %w", fieldID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to load custom field")
		return fmt.Errorf("failed to load custom field: %w", err)
	}
	if !removable {
		dao.Logger.WithField("field_id", fieldID).Warn("Attempt to delete a default custom field")
		return fmt.Errorf("custom field %d: %w", fieldID, ErrNotRemovable)
	}

	for _, stmt := range []string{
		`DELETE FROM iam.document_field_value WHERE custom_field_id = $1`,
		`DELETE FROM iam.field_value_restriction WHERE custom_field_id = $1`,
		`DELETE FROM iam.custom_field WHERE id = $1`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, fieldID); err != nil {
			dao.Logger.WithFields(logrus.Fields{
				"field_id": fieldID,
				"error":    err.Error(),
			}).Error("Failed to delete custom field")
			return fmt.Errorf("failed to delete custom field: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit custom field deletion transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id": projectID,
		"field_id":   fieldID,
	}).Info("Successfully deleted custom field")

	return nil
}

func queryCustomFields(ctx context.Context, q queryer, projectID int64) ([]models.CustomField, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+customFieldColumns+`
		FROM iam.custom_field
		WHERE project_id = $1
		ORDER BY display_order ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query custom fields: %w", err)
	}
	defer rows.Close()

	fields := []models.CustomField{}
	for rows.Next() {
		var field models.CustomField
		if err := scanCustomField(rows, &field); err != nil {
			return nil, fmt.Errorf("failed to scan custom field: %w", err)
		}
		fields = append(fields, field)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating custom fields: %w", err)
	}

	return fields, nil
}

// insertCustomField returns the raw driver error on failure so callers can classify it
func insertCustomField(ctx context.Context, q queryer, projectID int64, field models.CustomField) (*models.CustomField, error) {
	created := &models.CustomField{}
	err := scanCustomField(q.QueryRowContext(ctx, `
		INSERT INTO iam.custom_field (project_id, name, description, field_type, is_required, is_default,
		                              default_value, display_order, role_visibility, user_list_options, is_removable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+customFieldColumns,
		projectID, field.Name, field.Description, field.FieldType, field.IsRequired, field.IsDefault,
		field.DefaultValue, field.Order, field.RoleVisibility, field.UserListOptions, field.IsRemovable,
	), created)
	if err != nil {
		return nil, err
	}
	return created, nil
}
