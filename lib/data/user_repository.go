// Package data provides data access layer implementations for the AgentDMS backend.
// This package contains repository interfaces and their concrete implementations
// for interacting with PostgreSQL database and other data sources.
//
// Key responsibilities:
// 1. Database query execution and result mapping
// 2. Translating missing rows and constraint violations into sentinel errors
// 3. Error handling and logging
//
// All repositories follow the interface pattern for better testability and
// dependency injection throughout the application.
package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// UserRepository defines the contract for the identity lookups made by the Cognito triggers.
// Cognito ID is the key since it's the authoritative identifier from the user pool.
type UserRepository interface {
	// GetUserProfile retrieves a user with role names and the union of their permission names.
	// Returns ErrNotFound for unknown, deleted or inactive users.
	GetUserProfile(ctx context.Context, cognitoID string) (*models.UserProfile, error)

	// ConfirmSignup activates an invited user or creates a self-registered user with no roles
	ConfirmSignup(ctx context.Context, user *models.User) (*models.User, error)
}

// UserDao implements UserRepository interface using PostgreSQL database.
type UserDao struct {
	DB     *sql.DB        // PostgreSQL database connection pool
	Logger *logrus.Logger // Structured logger for debugging
}

// GetUserProfile fetches the token profile in a single query. Role and permission names
// are aggregated with ARRAY subqueries so a user without roles yields empty arrays.
func (dao *UserDao) GetUserProfile(ctx context.Context, cognitoID string) (*models.UserProfile, error) {
	query := `
		SELECT
			u.id, u.cognito_id, u.email, COALESCE(u.username, ''),
			COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), u.status,
			ARRAY(SELECT r.name
			        FROM iam.user_role ur
			        JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
			       WHERE ur.user_id = u.id
			       ORDER BY r.name),
			ARRAY(SELECT DISTINCT p.permission_name
			        FROM iam.user_role ur
			        JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
			        JOIN iam.role_permission rp ON rp.role_id = ur.role_id
			        JOIN iam.permission p ON p.permission_id = rp.permission_id
			       WHERE ur.user_id = u.id
			       ORDER BY p.permission_name)
		FROM iam.users u
		WHERE u.cognito_id = $1
		  AND u.is_deleted = FALSE
		  AND u.status IN ('active', 'pending')
	`

	dao.Logger.WithFields(logrus.Fields{
		"cognito_id": cognitoID,
		"operation":  "GetUserProfile",
	}).Debug("Fetching user profile")

	var profile models.UserProfile
	err := dao.DB.QueryRowContext(ctx, query, cognitoID).Scan(
		&profile.UserID,
		&profile.CognitoID,
		&profile.Email,
		&profile.Username,
		&profile.FirstName,
		&profile.LastName,
		&profile.Status,
		pq.Array(&profile.Roles),
		pq.Array(&profile.Permissions),
	)

	if err == sql.ErrNoRows {
		dao.Logger.WithFields(logrus.Fields{
			"cognito_id": cognitoID,
			"operation":  "GetUserProfile",
		}).Warn("User not found or inactive")
		return nil, fmt.Errorf("user %s: %w", cognitoID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"cognito_id": cognitoID,
			"operation":  "GetUserProfile",
			"error":      err.Error(),
		}).Error("Failed to fetch user profile")
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}

	if profile.Roles == nil {
		profile.Roles = []string{}
	}
	if profile.Permissions == nil {
		profile.Permissions = []string{}
	}

	dao.Logger.WithFields(logrus.Fields{
		"user_id":          profile.UserID,
		"roles_count":      len(profile.Roles),
		"permission_count": len(profile.Permissions),
		"operation":        "GetUserProfile",
	}).Debug("Successfully fetched user profile")

	return &profile, nil
}

// ConfirmSignup upserts on cognito_id: an invited user created by an administrator moves
// from pending to active, anyone else gets a new active row holding zero roles.
func (dao *UserDao) ConfirmSignup(ctx context.Context, user *models.User) (*models.User, error) {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO iam.users (cognito_id, email, username, first_name, last_name, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		ON CONFLICT (cognito_id) DO UPDATE
		SET status = 'active', updated_at = NOW()
		WHERE iam.users.is_deleted = FALSE
		RETURNING id, status, is_immutable, created_at, updated_at
	`, user.CognitoID, user.Email, user.Username, user.FirstName, user.LastName).Scan(
		&user.UserID, &user.Status, &user.IsImmutable, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("cognito_id", user.CognitoID).Warn("Signup confirmed for a deleted user")
		return nil, fmt.Errorf("user %s: %w", user.CognitoID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"cognito_id": user.CognitoID,
			"email":      user.Email,
			"error":      err.Error(),
		}).Error("Failed to confirm signup")
		return nil, fmt.Errorf("failed to confirm signup: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"user_id":    user.UserID,
		"cognito_id": user.CognitoID,
	}).Info("Successfully confirmed user signup")

	return user, nil
}
