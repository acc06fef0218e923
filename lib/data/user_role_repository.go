package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// UserRoleRepository defines the interface for user-role assignment operations
type UserRoleRepository interface {
	// ReplaceUserRoles replaces all roles held by a user
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) ([]models.UserRole, error)

	// GetUserRoles retrieves all roles held by a user
	GetUserRoles(ctx context.Context, userID int64) ([]models.UserRole, error)
}

// UserRoleDao implements UserRoleRepository interface using PostgreSQL
type UserRoleDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// ReplaceUserRoles replaces all role assignments for a user in one transaction
func (dao *UserRoleDao) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) ([]models.UserRole, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for updating user roles")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err = checkMutable(ctx, tx, userID); err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("User roles cannot be changed")
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM iam.user_role WHERE user_id = $1
	`, userID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to remove existing user roles")
		return nil, fmt.Errorf("failed to remove existing roles: %w", err)
	}

	if err = insertUserRoles(ctx, tx, userID, roleIDs); err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"role_ids": roleIDs,
			"error":    err.Error(),
		}).Error("Failed to assign user roles")
		return nil, err
	}

	roles, err := queryUserRoles(ctx, tx, userID)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to reload user roles")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit user role update transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"roles_count": len(roles),
	}).Info("Successfully replaced user roles")

	return roles, nil
}

// GetUserRoles retrieves all roles held by a user
func (dao *UserRoleDao) GetUserRoles(ctx context.Context, userID int64) ([]models.UserRole, error) {
	roles, err := queryUserRoles(ctx, dao.DB, userID)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to get user roles")
		return nil, err
	}
	return roles, nil
}
