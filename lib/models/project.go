package models

import (
	"time"
)

// Project represents a document project based on iam.projects table
type Project struct {
	ProjectID    int64         `json:"project_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	FileName     string        `json:"file_name,omitempty"`
	IsActive     bool          `json:"is_active"`
	IsArchived   bool          `json:"is_archived"`
	CreatedAt    time.Time     `json:"created_at"`
	CreatedBy    int64         `json:"created_by"`
	UpdatedAt    time.Time     `json:"updated_at"`
	UpdatedBy    int64         `json:"updated_by"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// CreateProjectRequest represents the request payload for creating a new project
type CreateProjectRequest struct {
	Name         string                     `json:"name" binding:"required,max=255"`
	Description  string                     `json:"description,omitempty" binding:"max=1000"`
	FileName     string                     `json:"file_name,omitempty" binding:"max=255"`
	CustomFields []CreateCustomFieldRequest `json:"custom_fields,omitempty" binding:"omitempty,dive"`
}

// UpdateProjectRequest represents the request payload for updating an existing project.
// Nil fields are left unchanged.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty" binding:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=1000"`
	FileName    *string `json:"file_name,omitempty" binding:"omitempty,max=255"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsArchived  *bool   `json:"is_archived,omitempty"`
}

// ProjectFilter narrows a project listing.
// ViewerID restricts the list to projects the user can view through an effective role; 0 lists every project.
type ProjectFilter struct {
	IncludeArchived bool
	ViewerID        int64
	Page            int
	PageSize        int
}

// ProjectListResponse represents a paginated list of projects
type ProjectListResponse struct {
	Data       []Project `json:"data"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// ProjectRole is a role activated on a project (iam.project_role).
// CanView, CanEdit and CanDelete are display-only; authorization never reads them.
type ProjectRole struct {
	ProjectID int64     `json:"project_id"`
	RoleID    int64     `json:"role_id"`
	RoleName  string    `json:"role_name"`
	CanView   bool      `json:"can_view"`
	CanEdit   bool      `json:"can_edit"`
	CanDelete bool      `json:"can_delete"`
	CreatedAt time.Time `json:"created_at"`
}

// AssignProjectRoleRequest activates a role on a project
type AssignProjectRoleRequest struct {
	RoleID int64 `json:"role_id" binding:"required,gt=0"`
}

// TotalPages returns the number of pages needed for total items at pageSize per page
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
