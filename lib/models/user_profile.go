// Package models defines the data structures used throughout the AgentDMS backend.
// These models map directly to the PostgreSQL iam schema and are used for:
// 1. Database queries and result mapping
// 2. JWT token generation (via Token Customizer Lambda)
// 3. API responses and inter-service communication
package models

// UserProfile is the identity aggregate placed into ID and access tokens.
//
// Roles are the globally held role names and Permissions the union of every
// permission those roles grant. Both are convenience claims: project scoped
// decisions are always re-derived from the database by user ID.
//
// Database mapping: iam.users + iam.user_role + iam.roles + iam.role_permission
type UserProfile struct {
	// Core Identity
	UserID    int64  `json:"user_id" db:"id"`
	CognitoID string `json:"cognito_id" db:"cognito_id"`
	Email     string `json:"email" db:"email"`
	Username  string `json:"username" db:"username"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Status    string `json:"status" db:"status"`

	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// GetFullName returns the user's full name as "FirstName LastName"
func (u *UserProfile) GetFullName() string {
	return u.FirstName + " " + u.LastName
}

// HasRole checks if the user holds a role with the given name
func (u *UserProfile) HasRole(roleName string) bool {
	for _, role := range u.Roles {
		if role == roleName {
			return true
		}
	}
	return false
}
