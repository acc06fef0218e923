package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agentdms/lib/models"
	"agentdms/lib/util"

	"github.com/sirupsen/logrus"
)

const unverifiableReason = "value could not be verified"

// restriction is a decoded field value restriction row
type restriction struct {
	id          int64
	roleName    string
	values      []string
	isAllowList bool
}

// ValidateFieldValue checks a candidate value against every restriction the user's
// effective roles on the field's project define for the field. The value must satisfy
// all of them. With no effective roles no restriction applies.
//
// An unknown field is rejected. A stored value list that cannot be decoded rejects the
// value and returns ErrUnverifiableRestriction.
func (r *Resolver) ValidateFieldValue(ctx context.Context, userID, customFieldID int64, value string) (models.FieldValidation, error) {
	if isSuperAdmin(userID) {
		return models.FieldValidation{Valid: true}, nil
	}

	projectID, found, err := r.Catalog.CustomFieldProjectID(ctx, customFieldID)
	if err != nil {
		return models.FieldValidation{Reason: unverifiableReason}, fmt.Errorf("failed to resolve custom field: %w", err)
	}
	if !found {
		return models.FieldValidation{Reason: "custom field not found"}, nil
	}

	return r.validateInProject(ctx, userID, projectID, customFieldID, value)
}

// ValidateDocumentFields validates every value written to a document of projectID.
// Each field must belong to the project. The first rejection is returned.
func (r *Resolver) ValidateDocumentFields(ctx context.Context, userID, projectID int64, values []models.FieldValueInput) (models.FieldValidation, error) {
	for _, input := range values {
		fieldProjectID, found, err := r.Catalog.CustomFieldProjectID(ctx, input.CustomFieldID)
		if err != nil {
			return models.FieldValidation{Reason: unverifiableReason}, fmt.Errorf("failed to resolve custom field: %w", err)
		}
		if !found || fieldProjectID != projectID {
			return models.FieldValidation{Reason: fmt.Sprintf("custom field %d does not belong to this project", input.CustomFieldID)}, nil
		}

		if isSuperAdmin(userID) {
			continue
		}

		result, err := r.validateInProject(ctx, userID, projectID, input.CustomFieldID, input.Value)
		if err != nil || !result.Valid {
			return result, err
		}
	}

	return models.FieldValidation{Valid: true}, nil
}

func (r *Resolver) validateInProject(ctx context.Context, userID, projectID, customFieldID int64, value string) (models.FieldValidation, error) {
	restrictions, err := r.effectiveRestrictions(ctx, userID, projectID, customFieldID)
	if err != nil {
		return models.FieldValidation{Reason: unverifiableReason}, err
	}

	log := r.Logger.WithFields(logrus.Fields{
		"user_id":         userID,
		"custom_field_id": customFieldID,
	})

	for _, rule := range restrictions {
		if rule.permits(value) {
			continue
		}
		log.WithFields(logrus.Fields{
			"restriction_id": rule.id,
			"role":           rule.roleName,
			"value":          value,
		}).Debug("Field value rejected by restriction")
		return models.FieldValidation{Reason: rule.rejection()}, nil
	}

	return models.FieldValidation{Valid: true}, nil
}

// GetAllowedValues describes the values the user may pick for the field.
//
// When any effective role has an allow-list the result is closed: the union of the
// allow-lists minus the union of the deny-lists. Otherwise the result is open ended,
// Values is empty and Denied carries the exclusions.
func (r *Resolver) GetAllowedValues(ctx context.Context, userID, customFieldID int64) (models.AllowedValues, error) {
	open := models.AllowedValues{CustomFieldID: customFieldID, Values: []string{}}
	if isSuperAdmin(userID) {
		return open, nil
	}

	projectID, found, err := r.Catalog.CustomFieldProjectID(ctx, customFieldID)
	if err != nil {
		return closedEmpty(customFieldID), fmt.Errorf("failed to resolve custom field: %w", err)
	}
	if !found {
		return closedEmpty(customFieldID), ErrCustomFieldNotFound
	}

	restrictions, err := r.effectiveRestrictions(ctx, userID, projectID, customFieldID)
	if err != nil {
		return closedEmpty(customFieldID), err
	}

	var allowed, denied []string
	hasAllowList := false
	for _, rule := range restrictions {
		if rule.isAllowList {
			hasAllowList = true
			allowed = append(allowed, rule.values...)
		} else {
			denied = append(denied, rule.values...)
		}
	}
	denied = util.UniqueFold(denied)

	if !hasAllowList {
		open.Denied = denied
		return open, nil
	}

	values := make([]string, 0, len(allowed))
	for _, v := range util.UniqueFold(allowed) {
		if !containsFold(denied, v) {
			values = append(values, v)
		}
	}

	return models.AllowedValues{
		CustomFieldID: customFieldID,
		Values:        values,
		Closed:        true,
		Denied:        denied,
	}, nil
}

// effectiveRestrictions loads and decodes the restrictions held on the field by the
// user's effective roles on the project. Any undecodable row fails the whole set.
func (r *Resolver) effectiveRestrictions(ctx context.Context, userID, projectID, customFieldID int64) ([]restriction, error) {
	scope, err := r.Catalog.ProjectRoleScope(ctx, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project roles: %w", err)
	}
	if len(scope.EffectiveRoleIDs) == 0 {
		return nil, nil
	}

	records, err := r.Catalog.RestrictionsForRoles(ctx, scope.EffectiveRoleIDs, customFieldID)
	if err != nil {
		return nil, fmt.Errorf("failed to load field restrictions: %w", err)
	}

	restrictions := make([]restriction, 0, len(records))
	for _, record := range records {
		values, err := decodeValues(record.RawValues)
		if err != nil {
			r.Logger.WithFields(logrus.Fields{
				"restriction_id":  record.RestrictionID,
				"role_id":         record.RoleID,
				"custom_field_id": customFieldID,
				"error":           err.Error(),
			}).Error("Stored field value restriction is malformed")
			return nil, fmt.Errorf("%w: restriction %d: %v", ErrUnverifiableRestriction, record.RestrictionID, err)
		}
		restrictions = append(restrictions, restriction{
			id:          record.RestrictionID,
			roleName:    record.RoleName,
			values:      values,
			isAllowList: record.IsAllowList,
		})
	}

	return restrictions, nil
}

func decodeValues(raw string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, fmt.Errorf("restricted values are null")
	}
	return values, nil
}

func (rule restriction) permits(value string) bool {
	if rule.isAllowList {
		return containsFold(rule.values, value)
	}
	return !containsFold(rule.values, value)
}

func (rule restriction) rejection() string {
	if rule.isAllowList {
		if len(rule.values) == 0 {
			return fmt.Sprintf("Role '%s' does not allow any value for this field", rule.roleName)
		}
		return fmt.Sprintf("Role '%s' only allows these values: %s", rule.roleName, strings.Join(rule.values, ", "))
	}
	return fmt.Sprintf("Role '%s' does not allow these values: %s", rule.roleName, strings.Join(rule.values, ", "))
}

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func closedEmpty(customFieldID int64) models.AllowedValues {
	return models.AllowedValues{CustomFieldID: customFieldID, Values: []string{}, Closed: true}
}
