package models

import (
	"time"
)

// Permission represents a capability based on iam.permission table.
// Names are dotted capability strings such as document.edit and are compared exactly.
type Permission struct {
	PermissionID   int64     `json:"permission_id"`         // Primary key from iam.permission.permission_id
	PermissionName string    `json:"permission_name"`       // Permission name (max 100 characters)
	Description    string    `json:"description,omitempty"` // Optional permission description
	CreatedAt      time.Time `json:"created_at"`            // Creation timestamp
	UpdatedAt      time.Time `json:"updated_at"`            // Last update timestamp
}

// CreatePermissionRequest represents the request payload for creating a new permission
type CreatePermissionRequest struct {
	PermissionName string `json:"permission_name" binding:"required,min=2,max=100"`
	Description    string `json:"description,omitempty" binding:"max=500"`
}

// UpdatePermissionRequest represents the request payload for updating an existing permission
type UpdatePermissionRequest struct {
	PermissionName string `json:"permission_name,omitempty" binding:"omitempty,min=2,max=100"`
	Description    string `json:"description,omitempty" binding:"max=500"`
}

// PermissionListResponse represents the response for listing permissions
type PermissionListResponse struct {
	Permissions []Permission `json:"permissions"`
	Total       int          `json:"total"`
}

// AssignPermissionRequest represents the request payload for assigning permission to role
type AssignPermissionRequest struct {
	PermissionID int64 `json:"permission_id" binding:"required,gt=0"`
}

// UnassignPermissionRequest represents the request payload for unassigning permission from role
type UnassignPermissionRequest struct {
	PermissionID int64 `json:"permission_id" binding:"required,gt=0"`
}
