package models

import (
	"time"
)

// Custom field types
const (
	FieldTypeText     = "Text"
	FieldTypeNumber   = "Number"
	FieldTypeDate     = "Date"
	FieldTypeBoolean  = "Boolean"
	FieldTypeLongText = "LongText"
	FieldTypeCurrency = "Currency"
	FieldTypeUserList = "UserList"
)

// Names of the fields every project is created with
const (
	DefaultFieldFilename     = "Filename"
	DefaultFieldDateCreated  = "Date Created"
	DefaultFieldDateModified = "Date Modified"
)

// CustomField is a metadata column defined on a project (iam.custom_field)
type CustomField struct {
	FieldID         int64     `json:"field_id"`
	ProjectID       int64     `json:"project_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	FieldType       string    `json:"field_type"`
	IsRequired      bool      `json:"is_required"`
	IsDefault       bool      `json:"is_default"`
	DefaultValue    string    `json:"default_value,omitempty"`
	Order           int       `json:"order"`
	RoleVisibility  string    `json:"role_visibility,omitempty"`   // comma separated role names
	UserListOptions string    `json:"user_list_options,omitempty"` // comma separated options for UserList fields
	IsRemovable     bool      `json:"is_removable"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateCustomFieldRequest represents the request payload for adding a field to a project
type CreateCustomFieldRequest struct {
	Name            string `json:"name" binding:"required,max=255"`
	Description     string `json:"description,omitempty" binding:"max=500"`
	FieldType       string `json:"field_type" binding:"required,oneof=Text Number Date Boolean LongText Currency UserList"`
	IsRequired      bool   `json:"is_required"`
	DefaultValue    string `json:"default_value,omitempty" binding:"max=500"`
	Order           int    `json:"order" binding:"min=0"`
	RoleVisibility  string `json:"role_visibility,omitempty" binding:"max=500"`
	UserListOptions string `json:"user_list_options,omitempty" binding:"max=2000"`
}

// DefaultCustomFields returns the non-removable fields created with every project
func DefaultCustomFields() []CustomField {
	return []CustomField{
		{Name: DefaultFieldFilename, Description: "The name of the uploaded file", FieldType: FieldTypeText, IsRequired: true, IsDefault: true, Order: 0},
		{Name: DefaultFieldDateCreated, Description: "When the document was created", FieldType: FieldTypeDate, IsRequired: true, IsDefault: true, Order: 1},
		{Name: DefaultFieldDateModified, Description: "When the document was last modified", FieldType: FieldTypeDate, IsRequired: true, IsDefault: true, Order: 2},
	}
}

// IsValidFieldType reports whether fieldType is one of the supported custom field types
func IsValidFieldType(fieldType string) bool {
	switch fieldType {
	case FieldTypeText, FieldTypeNumber, FieldTypeDate, FieldTypeBoolean, FieldTypeLongText, FieldTypeCurrency, FieldTypeUserList:
		return true
	default:
		return false
	}
}
