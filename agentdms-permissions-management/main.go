package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"agentdms/lib/api"
	"agentdms/lib/auth"
	"agentdms/lib/authz"
	"agentdms/lib/clients"
	"agentdms/lib/config"
	"agentdms/lib/constants"
	"agentdms/lib/data"
	"agentdms/lib/models"
	"agentdms/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger               *logrus.Logger
	cfg                  *config.Config
	ssmRepository        data.SSMRepository
	ssmParams            map[string]string
	sqlDB                *sql.DB
	permissionRepository data.PermissionRepository
	permissionChecker    api.GlobalPermissionChecker
)

// Handler processes API Gateway requests for permission management. Every route requires workspace.admin.
func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"method":    request.HTTPMethod,
		"resource":  request.Resource,
		"operation": "Handler",
	}).Debug("Permissions management request received")

	ctx, claims, resp, ok := api.Authenticate(ctx, request, logger)
	if !ok {
		return resp, nil
	}
	if resp, ok := api.RequireGlobalPermission(ctx, permissionChecker, claims, constants.PermissionWorkspaceAdmin, logger); !ok {
		return resp, nil
	}

	switch {
	case request.Resource == "/permissions" && request.HTTPMethod == http.MethodPost:
		return handleCreatePermission(ctx, request, claims)
	case request.Resource == "/permissions" && request.HTTPMethod == http.MethodGet:
		return handleGetPermissions(ctx)
	case request.Resource == "/permissions/{id}" && request.HTTPMethod == http.MethodGet:
		return handleGetPermission(ctx, request)
	case request.Resource == "/permissions/{id}" && request.HTTPMethod == http.MethodPut:
		return handleUpdatePermission(ctx, request)
	case request.Resource == "/permissions/{id}" && request.HTTPMethod == http.MethodDelete:
		return handleDeletePermission(ctx, request)
	default:
		logger.WithFields(logrus.Fields{
			"method":   request.HTTPMethod,
			"resource": request.Resource,
		}).Warn("Endpoint not found")
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
}

// handleCreatePermission handles POST /permissions
func handleCreatePermission(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	var createReq models.CreatePermissionRequest
	if err := api.ParseJSONBody(request.Body, &createReq); err != nil {
		logger.WithError(err).Error("Failed to parse create permission request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&createReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid permission", errs, logger), nil
	}

	created, err := permissionRepository.CreatePermission(ctx, &models.Permission{
		PermissionName: createReq.PermissionName,
		Description:    createReq.Description,
	})
	if err != nil {
		return api.StoreErrorResponse(err, "create permission", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"permission_id": created.PermissionID,
		"created_by":    claims.UserID,
	}).Info("Permission created")

	return api.SuccessResponse(http.StatusCreated, created, logger), nil
}

// handleGetPermissions handles GET /permissions
func handleGetPermissions(ctx context.Context) (events.APIGatewayProxyResponse, error) {
	permissions, err := permissionRepository.GetPermissions(ctx)
	if err != nil {
		return api.StoreErrorResponse(err, "get permissions", logger), nil
	}
	if permissions == nil {
		permissions = []models.Permission{}
	}

	return api.SuccessResponse(http.StatusOK, models.PermissionListResponse{
		Permissions: permissions,
		Total:       len(permissions),
	}, logger), nil
}

// handleGetPermission handles GET /permissions/{id}
func handleGetPermission(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	permissionID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid permission ID", logger), nil
	}

	permission, err := permissionRepository.GetPermissionByID(ctx, permissionID)
	if err != nil {
		return api.StoreErrorResponse(err, "get permission", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, permission, logger), nil
}

// handleUpdatePermission handles PUT /permissions/{id}
func handleUpdatePermission(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	permissionID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid permission ID", logger), nil
	}

	var updateReq models.UpdatePermissionRequest
	if err := api.ParseJSONBody(request.Body, &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update permission request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&updateReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid permission", errs, logger), nil
	}

	updated, err := permissionRepository.UpdatePermission(ctx, permissionID, &models.Permission{
		PermissionName: updateReq.PermissionName,
		Description:    updateReq.Description,
	})
	if err != nil {
		return api.StoreErrorResponse(err, "update permission", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, updated, logger), nil
}

// handleDeletePermission handles DELETE /permissions/{id}
func handleDeletePermission(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	permissionID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid permission ID", logger), nil
	}

	if err := permissionRepository.DeletePermission(ctx, permissionID); err != nil {
		return api.StoreErrorResponse(err, "delete permission", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Permission deleted successfully"}, logger), nil
}

// main is the Lambda function entry point
func main() {
	setup()
	lambda.Start(Handler)
}

func setup() {
	var err error

	cfg, err = config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Error reading Lambda environment")
	}

	logger = setupLogger(cfg)

	ssmRepository = &data.SSMDao{
		SSM:    clients.NewSSMClient(cfg),
		Logger: logger,
	}

	ssmParams, err = ssmRepository.GetParameters()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error while getting SSM params from parameter store")
	}

	if err = setupPostgresSQLClient(ssmParams); err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	logger.WithField("operation", "setup").Info("Permissions Management Lambda initialization completed successfully")
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	util.SetLogLevel(logger, cfg.LogLevel)
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: cfg.IsLocal})
	return logger
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	var err error

	sqlDB, err = clients.NewPostgresSQLClientFromParams(ssmParams)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	permissionRepository = &data.PermissionDao{
		DB:     sqlDB,
		Logger: logger,
	}

	permissionChecker = authz.NewResolver(&data.PermissionCatalogDao{
		DB:     sqlDB,
		Logger: logger,
	}, logger)

	logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	return nil
}
