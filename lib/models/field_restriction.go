package models

import (
	"time"
)

// FieldValueRestriction constrains which literal values a role may write into a custom field.
// Allow-lists are closed sets; deny-lists exclude values from an otherwise open set.
//
// Database mapping: iam.field_value_restriction (restricted_values is a JSON text array)
type FieldValueRestriction struct {
	RestrictionID int64     `json:"restriction_id"`
	RoleID        int64     `json:"role_id"`
	RoleName      string    `json:"role_name,omitempty"`
	CustomFieldID int64     `json:"custom_field_id"`
	Values        []string  `json:"values"`
	IsAllowList   bool      `json:"is_allow_list"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FieldRestrictionRecord is a restriction row as read for authorization.
// RawValues is kept undecoded so a corrupt list is detected by the validator instead of the query.
type FieldRestrictionRecord struct {
	RestrictionID int64
	RoleID        int64
	RoleName      string
	RawValues     string
	IsAllowList   bool
}

// CreateFieldRestrictionRequest represents the request payload for restricting a field for a role
type CreateFieldRestrictionRequest struct {
	CustomFieldID int64    `json:"custom_field_id" binding:"required,gt=0"`
	Values        []string `json:"values" binding:"required,min=1,dive,required,max=500"`
	IsAllowList   bool     `json:"is_allow_list"`
}

// UpdateFieldRestrictionRequest replaces the value list and mode of a restriction
type UpdateFieldRestrictionRequest struct {
	Values      []string `json:"values" binding:"required,min=1,dive,required,max=500"`
	IsAllowList bool     `json:"is_allow_list"`
}
