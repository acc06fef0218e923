package api

import (
	"context"
	"net/http"

	"agentdms/lib/auth"
	"agentdms/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

// GlobalPermissionChecker answers workspace-wide permission questions
type GlobalPermissionChecker interface {
	HasGlobalPermission(ctx context.Context, userID int64, permissionName string) (bool, error)
}

// ProjectPermissionResolver answers workspace and project permission questions
type ProjectPermissionResolver interface {
	GlobalPermissionChecker
	GetProjectPermissions(ctx context.Context, userID, projectID int64) (models.ProjectPermissions, error)
}

// Authenticate extracts the caller's claims and stores them on the context.
// On failure the returned response is a 401 and ok is false.
func Authenticate(ctx context.Context, request events.APIGatewayProxyRequest, logger *logrus.Logger) (context.Context, *auth.Claims, events.APIGatewayProxyResponse, bool) {
	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"operation": "Authenticate",
		}).Error("Authentication failed")
		return ctx, nil, ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), false
	}

	logger.WithFields(logrus.Fields{
		"user_id":   claims.UserID,
		"operation": "Authenticate",
	}).Debug("User authenticated successfully")

	return auth.WithClaims(ctx, claims), claims, events.APIGatewayProxyResponse{}, true
}

// RequireGlobalPermission returns a 403 when the caller lacks permissionName and a 500
// when it cannot be determined. ok is true only when the permission is held.
func RequireGlobalPermission(ctx context.Context, checker GlobalPermissionChecker, claims *auth.Claims, permissionName string, logger *logrus.Logger) (events.APIGatewayProxyResponse, bool) {
	allowed, err := checker.HasGlobalPermission(ctx, claims.UserID, permissionName)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"user_id":    claims.UserID,
			"permission": permissionName,
			"error":      err.Error(),
		}).Error("Failed to resolve global permission")
		return ErrorResponse(http.StatusInternalServerError, "Failed to verify permissions", logger), false
	}
	if !allowed {
		logger.WithFields(logrus.Fields{
			"user_id":    claims.UserID,
			"permission": permissionName,
		}).Warn("Global permission denied")
		return ForbiddenResponse("", logger), false
	}
	return events.APIGatewayProxyResponse{}, true
}

// RequireProjectPermission resolves the caller's permissions on a project and returns a 403
// unless permissionName is among them. The resolved permissions are returned on success.
func RequireProjectPermission(ctx context.Context, resolver ProjectPermissionResolver, claims *auth.Claims, projectID int64, permissionName string, logger *logrus.Logger) (models.ProjectPermissions, events.APIGatewayProxyResponse, bool) {
	perms, err := resolver.GetProjectPermissions(ctx, claims.UserID, projectID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"user_id":    claims.UserID,
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to resolve project permissions")
		return perms, ErrorResponse(http.StatusInternalServerError, "Failed to verify permissions", logger), false
	}
	if !perms.Has(permissionName) {
		logger.WithFields(logrus.Fields{
			"user_id":    claims.UserID,
			"project_id": projectID,
			"permission": permissionName,
		}).Warn("Project permission denied")
		return perms, ForbiddenResponse("", logger), false
	}
	return perms, events.APIGatewayProxyResponse{}, true
}
