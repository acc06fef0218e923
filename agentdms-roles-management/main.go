package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"agentdms/lib/api"
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
	logger                     *logrus.Logger
	cfg                        *config.Config
	ssmRepository              data.SSMRepository
	ssmParams                  map[string]string
	sqlDB                      *sql.DB
	roleRepository             data.RoleRepository
	rolePermissionRepository   data.RolePermissionRepository
	fieldRestrictionRepository data.FieldRestrictionRepository
	permissionChecker          api.GlobalPermissionChecker
)

// Handler processes API Gateway requests for role management. Every route requires workspace.admin.
func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"method":    request.HTTPMethod,
		"resource":  request.Resource,
		"operation": "Handler",
	}).Debug("Roles management request received")

	ctx, claims, resp, ok := api.Authenticate(ctx, request, logger)
	if !ok {
		return resp, nil
	}
	if resp, ok := api.RequireGlobalPermission(ctx, permissionChecker, claims, constants.PermissionWorkspaceAdmin, logger); !ok {
		return resp, nil
	}

	switch {
	case request.Resource == "/roles" && request.HTTPMethod == http.MethodPost:
		return handleCreateRole(ctx, request)
	case request.Resource == "/roles" && request.HTTPMethod == http.MethodGet:
		return handleGetRoles(ctx)
	case request.Resource == "/roles/{id}" && request.HTTPMethod == http.MethodGet:
		return handleGetRole(ctx, request)
	case request.Resource == "/roles/{id}" && request.HTTPMethod == http.MethodPut:
		return handleUpdateRole(ctx, request)
	case request.Resource == "/roles/{id}" && request.HTTPMethod == http.MethodDelete:
		return handleDeleteRole(ctx, request)
	case request.Resource == "/roles/{id}/permissions" && request.HTTPMethod == http.MethodPost:
		return handleAssignPermission(ctx, request)
	case request.Resource == "/roles/{id}/permissions" && request.HTTPMethod == http.MethodDelete:
		return handleUnassignPermission(ctx, request)
	case request.Resource == "/roles/{id}/field-restrictions" && request.HTTPMethod == http.MethodGet:
		return handleGetFieldRestrictions(ctx, request)
	case request.Resource == "/roles/{id}/field-restrictions" && request.HTTPMethod == http.MethodPost:
		return handleCreateFieldRestriction(ctx, request)
	case request.Resource == "/roles/{id}/field-restrictions/{restrictionId}" && request.HTTPMethod == http.MethodPut:
		return handleUpdateFieldRestriction(ctx, request)
	case request.Resource == "/roles/{id}/field-restrictions/{restrictionId}" && request.HTTPMethod == http.MethodDelete:
		return handleDeleteFieldRestriction(ctx, request)
	default:
		logger.WithFields(logrus.Fields{
			"method":   request.HTTPMethod,
			"resource": request.Resource,
		}).Warn("Endpoint not found")
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
}

// handleCreateRole handles POST /roles
func handleCreateRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var createReq models.CreateRoleRequest
	if err := api.ParseJSONBody(request.Body, &createReq); err != nil {
		logger.WithError(err).Error("Failed to parse create role request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&createReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid role", errs, logger), nil
	}

	created, err := roleRepository.CreateRole(ctx, &models.Role{
		RoleName:    createReq.RoleName,
		Description: createReq.Description,
	})
	if err != nil {
		return api.StoreErrorResponse(err, "create role", logger), nil
	}

	logger.WithField("role_id", created.RoleID).Info("Role created")
	return api.SuccessResponse(http.StatusCreated, created, logger), nil
}

// handleGetRoles handles GET /roles
func handleGetRoles(ctx context.Context) (events.APIGatewayProxyResponse, error) {
	roles, err := roleRepository.GetRoles(ctx)
	if err != nil {
		return api.StoreErrorResponse(err, "get roles", logger), nil
	}
	if roles == nil {
		roles = []models.Role{}
	}

	return api.SuccessResponse(http.StatusOK, models.RoleListResponse{
		Roles: roles,
		Total: len(roles),
	}, logger), nil
}

// handleGetRole handles GET /roles/{id} and returns the role with its permissions and field restrictions
func handleGetRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
	}

	role, err := roleRepository.GetRoleWithPermissions(ctx, roleID)
	if err != nil {
		return api.StoreErrorResponse(err, "get role", logger), nil
	}

	restrictions, err := fieldRestrictionRepository.GetFieldRestrictionsByRole(ctx, roleID)
	if err != nil {
		return api.StoreErrorResponse(err, "get role", logger), nil
	}
	role.FieldRestrictions = restrictions
	if role.FieldRestrictions == nil {
		role.FieldRestrictions = []models.FieldValueRestriction{}
	}

	return api.SuccessResponse(http.StatusOK, role, logger), nil
}

// handleUpdateRole handles PUT /roles/{id}
func handleUpdateRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
	}

	var updateReq models.UpdateRoleRequest
	if err := api.ParseJSONBody(request.Body, &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update role request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&updateReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid role", errs, logger), nil
	}

	updated, err := roleRepository.UpdateRole(ctx, roleID, &models.Role{
		RoleName:    updateReq.RoleName,
		Description: updateReq.Description,
	})
	if err != nil {
		return api.StoreErrorResponse(err, "update role", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, updated, logger), nil
}

// handleDeleteRole handles DELETE /roles/{id}
func handleDeleteRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
	}

	if err := roleRepository.DeleteRole(ctx, roleID); err != nil {
		return api.StoreErrorResponse(err, "delete role", logger), nil
	}

	logger.WithField("role_id", roleID).Info("Role deleted")
	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Role deleted successfully"}, logger), nil
}

// handleAssignPermission handles POST /roles/{id}/permissions
func handleAssignPermission(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
	}

	var assignReq models.AssignPermissionRequest
	if err := api.ParseJSONBody(request.Body, &assignReq); err != nil {
		logger.WithError(err).Error("Failed to parse assign permission request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&assignReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid permission assignment", errs, logger), nil
	}

	assigned, err := rolePermissionRepository.IsPermissionAssignedToRole(ctx, roleID, assignReq.PermissionID)
	if err != nil {
		return api.StoreErrorResponse(err, "assign permission", logger), nil
	}
	if assigned {
		return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Permission already assigned"}, logger), nil
	}

	if err := rolePermissionRepository.AssignPermissionToRole(ctx, roleID, assignReq.PermissionID); err != nil {
		return api.StoreErrorResponse(err, "assign permission", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"role_id":       roleID,
		"permission_id": assignReq.PermissionID,
	}).Info("Permission assigned to role")
	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Permission assigned successfully"}, logger), nil
}

// handleUnassignPermission handles DELETE /roles/{id}/permissions
func handleUnassignPermission(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
	}

	var unassignReq models.UnassignPermissionRequest
	if err := api.ParseJSONBody(request.Body, &unassignReq); err != nil {
		logger.WithError(err).Error("Failed to parse unassign permission request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&unassignReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid permission assignment", errs, logger), nil
	}

	if err := rolePermissionRepository.UnassignPermissionFromRole(ctx, roleID, unassignReq.PermissionID); err != nil {
		return api.StoreErrorResponse(err, "unassign permission", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Permission unassigned successfully"}, logger), nil
}

// handleGetFieldRestrictions handles GET /roles/{id}/field-restrictions
func handleGetFieldRestrictions(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
	}

	if _, err := roleRepository.GetRoleByID(ctx, roleID); err != nil {
		return api.StoreErrorResponse(err, "get field restrictions", logger), nil
	}

	restrictions, err := fieldRestrictionRepository.GetFieldRestrictionsByRole(ctx, roleID)
	if err != nil {
		return api.StoreErrorResponse(err, "get field restrictions", logger), nil
	}
	if restrictions == nil {
		restrictions = []models.FieldValueRestriction{}
	}

	return api.SuccessResponse(http.StatusOK, restrictions, logger), nil
}

// handleCreateFieldRestriction handles POST /roles/{id}/field-restrictions
func handleCreateFieldRestriction(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
	}

	var createReq models.CreateFieldRestrictionRequest
	if err := api.ParseJSONBody(request.Body, &createReq); err != nil {
		logger.WithError(err).Error("Failed to parse create field restriction request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&createReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid field restriction", errs, logger), nil
	}

	created, err := fieldRestrictionRepository.CreateFieldRestriction(ctx, roleID, &createReq)
	if err != nil {
		return api.StoreErrorResponse(err, "create field restriction", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"role_id":         roleID,
		"restriction_id":  created.RestrictionID,
		"custom_field_id": created.CustomFieldID,
		"is_allow_list":   created.IsAllowList,
	}).Info("Field restriction created")
	return api.SuccessResponse(http.StatusCreated, created, logger), nil
}

// handleUpdateFieldRestriction handles PUT /roles/{id}/field-restrictions/{restrictionId}
func handleUpdateFieldRestriction(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, restrictionID, errResp, ok := restrictionPath(request)
	if !ok {
		return errResp, nil
	}

	var updateReq models.UpdateFieldRestrictionRequest
	if err := api.ParseJSONBody(request.Body, &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update field restriction request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&updateReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid field restriction", errs, logger), nil
	}

	updated, err := fieldRestrictionRepository.UpdateFieldRestriction(ctx, roleID, restrictionID, &updateReq)
	if err != nil {
		return api.StoreErrorResponse(err, "update field restriction", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, updated, logger), nil
}

// handleDeleteFieldRestriction handles DELETE /roles/{id}/field-restrictions/{restrictionId}
func handleDeleteFieldRestriction(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	roleID, restrictionID, errResp, ok := restrictionPath(request)
	if !ok {
		return errResp, nil
	}

	if err := fieldRestrictionRepository.DeleteFieldRestriction(ctx, roleID, restrictionID); err != nil {
		return api.StoreErrorResponse(err, "delete field restriction", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Field restriction deleted successfully"}, logger), nil
}

func restrictionPath(request events.APIGatewayProxyRequest) (int64, int64, events.APIGatewayProxyResponse, bool) {
	roleID, err := api.PathID(request, "id")
	if err != nil {
		return 0, 0, api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), false
	}
	restrictionID, err := api.PathID(request, "restrictionId")
	if err != nil {
		return 0, 0, api.ErrorResponse(http.StatusBadRequest, "Invalid restriction ID", logger), false
	}
	return roleID, restrictionID, events.APIGatewayProxyResponse{}, true
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

	logger = logrus.New()
	util.SetLogLevel(logger, cfg.LogLevel)
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: cfg.IsLocal})

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

	logger.WithField("operation", "setup").Info("Roles Management Lambda initialization completed successfully")
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	var err error

	sqlDB, err = clients.NewPostgresSQLClientFromParams(ssmParams)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	roleRepository = &data.RoleDao{
		DB:     sqlDB,
		Logger: logger,
	}
	rolePermissionRepository = &data.RolePermissionDao{
		DB:     sqlDB,
		Logger: logger,
	}
	fieldRestrictionRepository = &data.FieldRestrictionDao{
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
