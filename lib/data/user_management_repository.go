package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// UserManagementRepository defines the interface for administrative user operations
type UserManagementRepository interface {
	// CreateUser creates a pending user and assigns the given roles
	CreateUser(ctx context.Context, user *models.User, roleIDs []int64) (*models.UserWithRoles, error)

	// GetUsers retrieves every user that is not deleted, with their roles
	GetUsers(ctx context.Context) ([]models.UserWithRoles, error)

	// GetUserByID retrieves a user with their roles
	GetUserByID(ctx context.Context, userID int64) (*models.UserWithRoles, error)

	// UpdateUser updates profile fields. Immutable users return ErrImmutableUser.
	UpdateUser(ctx context.Context, userID int64, user *models.User) (*models.User, error)

	// DeleteUser soft deletes a user, removes their roles and returns their Cognito ID
	DeleteUser(ctx context.Context, userID int64) (string, error)
}

// UserManagementDao implements UserManagementRepository interface using PostgreSQL
type UserManagementDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const userColumns = `u.id, COALESCE(u.cognito_id, ''), u.email, COALESCE(u.username, ''),
		       COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), u.status, u.is_immutable,
		       u.created_at, u.updated_at`

func scanUser(scanner interface{ Scan(...interface{}) error }, user *models.User) error {
	return scanner.Scan(
		&user.UserID,
		&user.CognitoID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Status,
		&user.IsImmutable,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

// CreateUser creates a new user with status pending and assigns roles in one transaction
func (dao *UserManagementDao) CreateUser(ctx context.Context, user *models.User, roleIDs []int64) (*models.UserWithRoles, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for user creation")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	user.Status = models.UserStatusPending
	err = tx.QueryRowContext(ctx, `
		INSERT INTO iam.users (cognito_id, email, username, first_name, last_name, status)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
		RETURNING id, is_immutable, created_at, updated_at
	`, user.CognitoID, user.Email, user.Username, user.FirstName, user.LastName, user.Status).Scan(
		&user.UserID, &user.IsImmutable, &user.CreatedAt, &user.UpdatedAt)

	if isUniqueViolation(err) {
		dao.Logger.WithField("email", user.Email).Warn("User already exists")
		return nil, fmt.Errorf("user %s: %w", user.Email, ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"email":      user.Email,
			"cognito_id": user.CognitoID,
			"error":      err.Error(),
		}).Error("Failed to create user")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err = insertUserRoles(ctx, tx, user.UserID, roleIDs); err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id":  user.UserID,
			"role_ids": roleIDs,
			"error":    err.Error(),
		}).Error("Failed to assign roles to new user")
		return nil, err
	}

	roles, err := queryUserRoles(ctx, tx, user.UserID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit user creation transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"user_id":     user.UserID,
		"email":       user.Email,
		"roles_count": len(roles),
	}).Info("Successfully created user")

	return &models.UserWithRoles{User: *user, Roles: roles}, nil
}

// GetUsers retrieves all users with their role assignments
func (dao *UserManagementDao) GetUsers(ctx context.Context) ([]models.UserWithRoles, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM iam.users u
		WHERE u.is_deleted = FALSE
		ORDER BY u.email ASC
	`)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query users")
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.UserWithRoles
	index := map[int64]int{}
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan user row")
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		index[user.UserID] = len(users)
		users = append(users, models.UserWithRoles{User: user, Roles: []models.UserRole{}})
	}
	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating user rows")
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	if len(users) == 0 {
		return users, nil
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}

	roleRows, err := dao.DB.QueryContext(ctx, `
		SELECT ur.user_id, r.id, r.name, ur.created_at
		FROM iam.user_role ur
		JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
		WHERE ur.user_id = ANY($1)
		ORDER BY ur.user_id, r.name
	`, pq.Array(ids))
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query user roles")
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer roleRows.Close()

	for roleRows.Next() {
		var userID int64
		var role models.UserRole
		if err := roleRows.Scan(&userID, &role.RoleID, &role.RoleName, &role.CreatedAt); err != nil {
			dao.Logger.WithError(err).Error("Failed to scan user role row")
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		if i, ok := index[userID]; ok {
			users[i].Roles = append(users[i].Roles, role)
		}
	}
	if err = roleRows.Err(); err != nil {
		dao.Logger.WithError(err).Error("Error iterating user role rows")
		return nil, fmt.Errorf("error iterating user roles: %w", err)
	}

	dao.Logger.WithField("count", len(users)).Debug("Successfully retrieved users")

	return users, nil
}

// GetUserByID retrieves a user with their roles
func (dao *UserManagementDao) GetUserByID(ctx context.Context, userID int64) (*models.UserWithRoles, error) {
	var user models.User
	err := scanUser(dao.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM iam.users u
		WHERE u.id = $1 AND u.is_deleted = FALSE
	`, userID), &user)

	if err == sql.ErrNoRows {
		dao.Logger.WithField("user_id", userID).Warn("User not found")
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to get user")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	roles, err := queryUserRoles(ctx, dao.DB, userID)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to get user roles")
		return nil, err
	}

	return &models.UserWithRoles{User: user, Roles: roles}, nil
}

// UpdateUser updates an existing user. Empty fields keep their stored value.
func (dao *UserManagementDao) UpdateUser(ctx context.Context, userID int64, user *models.User) (*models.User, error) {
	if err := checkMutable(ctx, dao.DB, userID); err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("User cannot be updated")
		return nil, err
	}

	var updated models.User
	err := scanUser(dao.DB.QueryRowContext(ctx, `
		UPDATE iam.users u
		SET username = COALESCE(NULLIF($1, ''), u.username),
		    first_name = COALESCE(NULLIF($2, ''), u.first_name),
		    last_name = COALESCE(NULLIF($3, ''), u.last_name),
		    status = COALESCE(NULLIF($4, ''), u.status),
		    updated_at = NOW()
		WHERE u.id = $5 AND u.is_deleted = FALSE AND u.is_immutable = FALSE
		RETURNING `+userColumns+`
	`, user.Username, user.FirstName, user.LastName, user.Status, userID), &updated)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("username %s: %w", user.Username, ErrConflict)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to update user")
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	dao.Logger.WithField("user_id", userID).Info("Successfully updated user")

	return &updated, nil
}

// DeleteUser soft deletes a user and all role assignments
func (dao *UserManagementDao) DeleteUser(ctx context.Context, userID int64) (string, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for user deletion")
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err = checkMutable(ctx, tx, userID); err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("User cannot be deleted")
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM iam.user_role WHERE user_id = $1
	`, userID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to remove user role assignments")
		return "", fmt.Errorf("failed to remove user assignments: %w", err)
	}

	var cognitoID string
	err = tx.QueryRowContext(ctx, `
		UPDATE iam.users
		SET is_deleted = TRUE, status = 'inactive', updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING COALESCE(cognito_id, '')
	`, userID).Scan(&cognitoID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to delete user")
		return "", fmt.Errorf("failed to delete user: %w", err)
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit user deletion transaction")
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithField("user_id", userID).Info("Successfully deleted user and all assignments")

	return cognitoID, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// checkMutable returns ErrNotFound for a missing user and ErrImmutableUser for a seeded one
func checkMutable(ctx context.Context, q queryer, userID int64) error {
	var immutable bool
	err := q.QueryRowContext(ctx, `
		SELECT is_immutable FROM iam.users WHERE id = $1 AND is_deleted = FALSE
	`, userID).Scan(&immutable)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if immutable {
		return fmt.Errorf("user %d: %w", userID, ErrImmutableUser)
	}
	return nil
}

func queryUserRoles(ctx context.Context, q queryer, userID int64) ([]models.UserRole, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.name, ur.created_at
		FROM iam.user_role ur
		JOIN iam.roles r ON r.id = ur.role_id AND r.is_deleted = FALSE
		WHERE ur.user_id = $1
		ORDER BY r.name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	roles := []models.UserRole{}
	for rows.Next() {
		var role models.UserRole
		if err := rows.Scan(&role.RoleID, &role.RoleName, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user roles: %w", err)
	}
	return roles, nil
}

// insertUserRoles assigns roleIDs after checking every one exists and is not deleted
func insertUserRoles(ctx context.Context, tx *sql.Tx, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}

	var found int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM iam.roles WHERE id = ANY($1) AND is_deleted = FALSE
	`, pq.Array(roleIDs)).Scan(&found)
	if err != nil {
		return fmt.Errorf("failed to validate roles: %w", err)
	}
	if found != countDistinct(roleIDs) {
		return fmt.Errorf("one or more roles: %w", ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO iam.user_role (user_id, role_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, userID, pq.Array(roleIDs))
	if err != nil {
		return fmt.Errorf("failed to assign roles: %w", err)
	}
	return nil
}

func countDistinct(ids []int64) int {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return len(seen)
}
