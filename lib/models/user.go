package models

import (
	"time"
)

// User status values
const (
	UserStatusPending  = "pending"
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User represents a user in the system based on iam.users table
type User struct {
	UserID      int64     `json:"user_id"`      // Primary key from iam.users.id
	CognitoID   string    `json:"cognito_id"`   // AWS Cognito sub UUID
	Email       string    `json:"email"`        // User's email (must match Cognito email)
	Username    string    `json:"username"`     // Display username, unique
	FirstName   string    `json:"first_name"`   // User's first name
	LastName    string    `json:"last_name"`    // User's last name
	Status      string    `json:"status"`       // Account status: 'pending', 'active', 'inactive'
	IsImmutable bool      `json:"is_immutable"` // Seeded accounts that cannot be edited or deleted
	CreatedAt   time.Time `json:"created_at"`   // Creation timestamp
	UpdatedAt   time.Time `json:"updated_at"`   // Last update timestamp
}

// UserWithRoles represents a user with their globally held roles
type UserWithRoles struct {
	User
	Roles []UserRole `json:"roles"`
}

// UserRole represents one iam.user_role row joined with the role name
type UserRole struct {
	RoleID    int64     `json:"role_id"`
	RoleName  string    `json:"role_name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserRequest represents the request payload for creating a new user
type CreateUserRequest struct {
	Email     string  `json:"email" binding:"required,email"`
	Username  string  `json:"username" binding:"required,min=3,max=100"`
	FirstName string  `json:"first_name" binding:"required,min=1,max=50"`
	LastName  string  `json:"last_name" binding:"required,min=1,max=50"`
	RoleIDs   []int64 `json:"role_ids,omitempty" binding:"omitempty,dive,gt=0"`
	// Note: Status is automatically set to "pending" by backend
}

// UpdateUserRequest represents the request payload for updating an existing user
type UpdateUserRequest struct {
	Username  string `json:"username,omitempty" binding:"omitempty,min=3,max=100"`
	FirstName string `json:"first_name,omitempty" binding:"omitempty,min=1,max=50"`
	LastName  string `json:"last_name,omitempty" binding:"omitempty,min=1,max=50"`
	Status    string `json:"status,omitempty" binding:"omitempty,oneof=pending active inactive"`
}

// UpdateUserRolesRequest replaces every role held by a user
type UpdateUserRolesRequest struct {
	RoleIDs []int64 `json:"role_ids" binding:"omitempty,dive,gt=0"`
}

// UserListResponse represents the response for listing users
type UserListResponse struct {
	Users []UserWithRoles `json:"users"`
	Total int             `json:"total"`
}

// MyPermissionsResponse is returned to the caller asking for their own global capabilities
type MyPermissionsResponse struct {
	UserID       int64    `json:"user_id"`
	IsSuperAdmin bool     `json:"is_super_admin"`
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"`
}
