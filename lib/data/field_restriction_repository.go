package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// FieldRestrictionRepository defines the interface for managing field value restrictions of a role
type FieldRestrictionRepository interface {
	CreateFieldRestriction(ctx context.Context, roleID int64, request *models.CreateFieldRestrictionRequest) (*models.FieldValueRestriction, error)
	GetFieldRestrictionsByRole(ctx context.Context, roleID int64) ([]models.FieldValueRestriction, error)
	UpdateFieldRestriction(ctx context.Context, roleID, restrictionID int64, request *models.UpdateFieldRestrictionRequest) (*models.FieldValueRestriction, error)
	DeleteFieldRestriction(ctx context.Context, roleID, restrictionID int64) error
}

// FieldRestrictionDao implements FieldRestrictionRepository interface using PostgreSQL
type FieldRestrictionDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const restrictionColumns = `f.id, f.role_id, r.name, f.custom_field_id, COALESCE(f.restricted_values, ''),
		       f.is_allow_list, f.created_at, f.updated_at`

// scanRestriction decodes the stored value list. A list that cannot be decoded is returned empty
// so an administrator can still see and replace it.
func (dao *FieldRestrictionDao) scanRestriction(scanner interface{ Scan(...interface{}) error }, restriction *models.FieldValueRestriction) error {
	var raw string
	err := scanner.Scan(
		&restriction.RestrictionID,
		&restriction.RoleID,
		&restriction.RoleName,
		&restriction.CustomFieldID,
		&raw,
		&restriction.IsAllowList,
		&restriction.CreatedAt,
		&restriction.UpdatedAt,
	)
	if err != nil {
		return err
	}

	restriction.Values = []string{}
	if err := json.Unmarshal([]byte(raw), &restriction.Values); err != nil || restriction.Values == nil {
		dao.Logger.WithFields(logrus.Fields{
			"restriction_id": restriction.RestrictionID,
			"role_id":        restriction.RoleID,
		}).Warn("Stored restriction values are not a JSON string array")
		restriction.Values = []string{}
	}
	return nil
}

// CreateFieldRestriction adds a restriction on a custom field for a role
func (dao *FieldRestrictionDao) CreateFieldRestriction(ctx context.Context, roleID int64, request *models.CreateFieldRestrictionRequest) (*models.FieldValueRestriction, error) {
	encoded, err := json.Marshal(request.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode restriction values: %w", err)
	}

	restriction := &models.FieldValueRestriction{}
	err = dao.scanRestriction(dao.DB.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO iam.field_value_restriction (role_id, custom_field_id, restricted_values, is_allow_list)
			SELECT r.id, $2, $3, $4
			FROM iam.roles r
			WHERE r.id = $1 AND r.is_deleted = FALSE
			RETURNING *
		)
		SELECT `+restrictionColumns+`
		FROM inserted f
		JOIN iam.roles r ON r.id = f.role_id
	`, roleID, request.CustomFieldID, string(encoded), request.IsAllowList), restriction)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("custom field %d: %w", request.CustomFieldID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id":         roleID,
			"custom_field_id": request.CustomFieldID,
			"error":           err.Error(),
		}).Error("Failed to create field restriction")
		return nil, fmt.Errorf("failed to create field restriction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"restriction_id":  restriction.RestrictionID,
		"role_id":         roleID,
		"custom_field_id": request.CustomFieldID,
		"is_allow_list":   request.IsAllowList,
	}).Info("Successfully created field restriction")

	return restriction, nil
}

// GetFieldRestrictionsByRole retrieves every restriction held by a role
func (dao *FieldRestrictionDao) GetFieldRestrictionsByRole(ctx context.Context, roleID int64) ([]models.FieldValueRestriction, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT `+restrictionColumns+`
		FROM iam.field_value_restriction f
		JOIN iam.roles r ON r.id = f.role_id
		WHERE f.role_id = $1
		ORDER BY f.custom_field_id ASC, f.id ASC
	`, roleID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id": roleID,
			"error":   err.Error(),
		}).Error("Failed to query field restrictions")
		return nil, fmt.Errorf("failed to query field restrictions: %w", err)
	}
	defer rows.Close()

	restrictions := []models.FieldValueRestriction{}
	for rows.Next() {
		var restriction models.FieldValueRestriction
		if err := dao.scanRestriction(rows, &restriction); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan field restriction row")
			return nil, fmt.Errorf("failed to scan field restriction: %w", err)
		}
		restrictions = append(restrictions, restriction)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating field restriction rows")
		return nil, fmt.Errorf("error iterating field restrictions: %w", err)
	}

	return restrictions, nil
}

// UpdateFieldRestriction replaces the value list and mode of a restriction owned by roleID
func (dao *FieldRestrictionDao) UpdateFieldRestriction(ctx context.Context, roleID, restrictionID int64, request *models.UpdateFieldRestrictionRequest) (*models.FieldValueRestriction, error) {
	encoded, err := json.Marshal(request.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode restriction values: %w", err)
	}

	restriction := &models.FieldValueRestriction{}
	err = dao.scanRestriction(dao.DB.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE iam.field_value_restriction
			SET restricted_values = $3, is_allow_list = $4, updated_at = NOW()
			WHERE id = $2 AND role_id = $1
			RETURNING *
		)
		SELECT `+restrictionColumns+`
		FROM updated f
		JOIN iam.roles r ON r.id = f.role_id
	`, roleID, restrictionID, string(encoded), request.IsAllowList), restriction)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("field restriction %d: %w", restrictionID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id":        roleID,
			"restriction_id": restrictionID,
			"error":          err.Error(),
		}).Error("Failed to update field restriction")
		return nil, fmt.Errorf("failed to update field restriction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"restriction_id": restrictionID,
		"role_id":        roleID,
		"is_allow_list":  request.IsAllowList,
	}).Info("Successfully updated field restriction")

	return restriction, nil
}

// DeleteFieldRestriction removes a restriction owned by roleID
func (dao *FieldRestrictionDao) DeleteFieldRestriction(ctx context.Context, roleID, restrictionID int64) error {
	result, err := dao.DB.ExecContext(ctx, `
		DELETE FROM iam.field_value_restriction
		WHERE id = $2 AND role_id = $1
	`, roleID, restrictionID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"role_id":        roleID,
			"restriction_id": restrictionID,
			"error":          err.Error(),
		}).Error("Failed to delete field restriction")
		return fmt.Errorf("failed to delete field restriction: %w", err)
	}

	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return fmt.Errorf("field restriction %d: %w", restrictionID, ErrNotFound)
	}

	dao.Logger.WithFields(logrus.Fields{
		"restriction_id": restrictionID,
		"role_id":        roleID,
	}).Info("Successfully deleted field restriction")

	return nil
}
