package models

import (
	"time"
)

// Role represents a workspace role based on iam.roles table
type Role struct {
	RoleID      int64     `json:"role_id"`               // Primary key from iam.roles.id
	RoleName    string    `json:"role_name"`             // Unique role name (max 100 characters)
	Description string    `json:"description,omitempty"` // Optional role description
	CreatedAt   time.Time `json:"created_at"`            // Creation timestamp
	UpdatedAt   time.Time `json:"updated_at"`            // Last update timestamp
}

// CreateRoleRequest represents the request payload for creating a new role
type CreateRoleRequest struct {
	RoleName    string `json:"role_name" binding:"required,min=2,max=100"`
	Description string `json:"description,omitempty" binding:"max=500"`
}

// UpdateRoleRequest represents the request payload for updating an existing role
type UpdateRoleRequest struct {
	RoleName    string `json:"role_name,omitempty" binding:"omitempty,min=2,max=100"`
	Description string `json:"description,omitempty" binding:"max=500"`
}

// RoleListResponse represents the response for listing roles
type RoleListResponse struct {
	Roles []Role `json:"roles"`
	Total int    `json:"total"`
}

// RoleWithPermissions represents a role with its associated permissions and field restrictions
type RoleWithPermissions struct {
	Role
	Permissions       []Permission            `json:"permissions"`
	FieldRestrictions []FieldValueRestriction `json:"field_restrictions"`
}
