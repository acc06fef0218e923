package main

import (
	"context"
	"database/sql"
	"errors"
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
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger                   *logrus.Logger
	cfg                      *config.Config
	ssmRepository            data.SSMRepository
	ssmParams                map[string]string
	sqlDB                    *sql.DB
	userManagementRepository data.UserManagementRepository
	userRoleRepository       data.UserRoleRepository
	permissionCatalog        data.PermissionCatalog
	permissionChecker        api.GlobalPermissionChecker
	cognitoClient            clients.CognitoClientInterface
	userPoolID               string
)

// Handler processes API Gateway requests for user management.
// GET /me/permissions is open to every authenticated user; all other routes require workspace.admin.
func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"method":    request.HTTPMethod,
		"resource":  request.Resource,
		"operation": "Handler",
	}).Debug("User management request received")

	ctx, claims, resp, ok := api.Authenticate(ctx, request, logger)
	if !ok {
		return resp, nil
	}

	if request.Resource == "/me/permissions" && request.HTTPMethod == http.MethodGet {
		return handleGetMyPermissions(ctx, claims)
	}

	if resp, ok := api.RequireGlobalPermission(ctx, permissionChecker, claims, constants.PermissionWorkspaceAdmin, logger); !ok {
		return resp, nil
	}

	switch {
	case request.Resource == "/users" && request.HTTPMethod == http.MethodPost:
		return handleCreateUser(ctx, request, claims)
	case request.Resource == "/users" && request.HTTPMethod == http.MethodGet:
		return handleGetUsers(ctx)
	case request.Resource == "/users/{id}" && request.HTTPMethod == http.MethodGet:
		return handleGetUser(ctx, request)
	case request.Resource == "/users/{id}" && request.HTTPMethod == http.MethodPut:
		return handleUpdateUser(ctx, request)
	case request.Resource == "/users/{id}" && request.HTTPMethod == http.MethodDelete:
		return handleDeleteUser(ctx, request, claims)
	case request.Resource == "/users/{id}/roles" && request.HTTPMethod == http.MethodGet:
		return handleGetUserRoles(ctx, request)
	case request.Resource == "/users/{id}/roles" && request.HTTPMethod == http.MethodPut:
		return handleReplaceUserRoles(ctx, request, claims)
	default:
		logger.WithFields(logrus.Fields{
			"method":   request.HTTPMethod,
			"resource": request.Resource,
		}).Warn("Endpoint not found")
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
}

// handleGetMyPermissions handles GET /me/permissions
func handleGetMyPermissions(ctx context.Context, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	roles, err := permissionCatalog.UserRoleNames(ctx, claims.UserID)
	if err != nil {
		return api.StoreErrorResponse(err, "get permissions", logger), nil
	}
	permissions, err := permissionCatalog.UserPermissionNames(ctx, claims.UserID)
	if err != nil {
		return api.StoreErrorResponse(err, "get permissions", logger), nil
	}
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	return api.SuccessResponse(http.StatusOK, models.MyPermissionsResponse{
		UserID:       claims.UserID,
		IsSuperAdmin: claims.UserID == auth.SuperAdminUserID,
		Roles:        roles,
		Permissions:  permissions,
	}, logger), nil
}

// handleCreateUser handles POST /users. The user is invited through Cognito first and then
// recorded as pending; the Cognito account is removed again if the database insert fails.
func handleCreateUser(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	var createReq models.CreateUserRequest
	if err := api.ParseJSONBody(request.Body, &createReq); err != nil {
		logger.WithError(err).Error("Failed to parse create user request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&createReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid user", errs, logger), nil
	}

	cognitoID, err := createCognitoUser(ctx, &createReq)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"email": createReq.Email,
			"error": err.Error(),
		}).Error("Failed to create Cognito user")
		var exists *types.UsernameExistsException
		if errors.As(err, &exists) {
			return api.ErrorResponse(http.StatusConflict, "A user with this email already exists", logger), nil
		}
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to create user", logger), nil
	}

	created, err := userManagementRepository.CreateUser(ctx, &models.User{
		CognitoID: cognitoID,
		Email:     createReq.Email,
		Username:  createReq.Username,
		FirstName: createReq.FirstName,
		LastName:  createReq.LastName,
	}, createReq.RoleIDs)
	if err != nil {
		if delErr := deleteCognitoUser(ctx, cognitoID); delErr != nil {
			logger.WithFields(logrus.Fields{
				"cognito_id": cognitoID,
				"error":      delErr.Error(),
			}).Error("Failed to roll back Cognito user after database error")
		}
		return api.StoreErrorResponse(err, "create user", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"user_id":    created.UserID,
		"created_by": claims.UserID,
	}).Info("User invited")
	return api.SuccessResponse(http.StatusCreated, created, logger), nil
}

// handleGetUsers handles GET /users
func handleGetUsers(ctx context.Context) (events.APIGatewayProxyResponse, error) {
	users, err := userManagementRepository.GetUsers(ctx)
	if err != nil {
		return api.StoreErrorResponse(err, "get users", logger), nil
	}
	if users == nil {
		users = []models.UserWithRoles{}
	}

	return api.SuccessResponse(http.StatusOK, models.UserListResponse{
		Users: users,
		Total: len(users),
	}, logger), nil
}

// handleGetUser handles GET /users/{id}
func handleGetUser(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", logger), nil
	}

	user, err := userManagementRepository.GetUserByID(ctx, userID)
	if err != nil {
		return api.StoreErrorResponse(err, "get user", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, user, logger), nil
}

// handleUpdateUser handles PUT /users/{id}
func handleUpdateUser(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", logger), nil
	}

	var updateReq models.UpdateUserRequest
	if err := api.ParseJSONBody(request.Body, &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update user request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&updateReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid user", errs, logger), nil
	}

	updated, err := userManagementRepository.UpdateUser(ctx, userID, &models.User{
		Username:  updateReq.Username,
		FirstName: updateReq.FirstName,
		LastName:  updateReq.LastName,
		Status:    updateReq.Status,
	})
	if err != nil {
		return api.StoreErrorResponse(err, "update user", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, updated, logger), nil
}

// handleDeleteUser handles DELETE /users/{id}
func handleDeleteUser(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	userID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", logger), nil
	}
	if userID == claims.UserID {
		return api.ErrorResponse(http.StatusBadRequest, "You cannot delete your own account", logger), nil
	}

	cognitoID, err := userManagementRepository.DeleteUser(ctx, userID)
	if err != nil {
		return api.StoreErrorResponse(err, "delete user", logger), nil
	}

	if cognitoID != "" {
		if err := deleteCognitoUser(ctx, cognitoID); err != nil {
			logger.WithFields(logrus.Fields{
				"user_id":    userID,
				"cognito_id": cognitoID,
				"error":      err.Error(),
			}).Warn("Failed to delete user from Cognito, but database deletion succeeded")
		}
	}

	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "User deleted successfully"}, logger), nil
}

// handleGetUserRoles handles GET /users/{id}/roles
func handleGetUserRoles(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", logger), nil
	}

	if _, err := userManagementRepository.GetUserByID(ctx, userID); err != nil {
		return api.StoreErrorResponse(err, "get user roles", logger), nil
	}

	roles, err := userRoleRepository.GetUserRoles(ctx, userID)
	if err != nil {
		return api.StoreErrorResponse(err, "get user roles", logger), nil
	}
	if roles == nil {
		roles = []models.UserRole{}
	}

	return api.SuccessResponse(http.StatusOK, roles, logger), nil
}

// handleReplaceUserRoles handles PUT /users/{id}/roles
func handleReplaceUserRoles(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	userID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid user ID", logger), nil
	}

	var rolesReq models.UpdateUserRolesRequest
	if err := api.ParseJSONBody(request.Body, &rolesReq); err != nil {
		logger.WithError(err).Error("Failed to parse update user roles request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&rolesReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid role assignment", errs, logger), nil
	}

	roles, err := userRoleRepository.ReplaceUserRoles(ctx, userID, rolesReq.RoleIDs)
	if err != nil {
		return api.StoreErrorResponse(err, "update user roles", logger), nil
	}
	if roles == nil {
		roles = []models.UserRole{}
	}

	logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"roles_count": len(roles),
		"updated_by":  claims.UserID,
	}).Info("User roles replaced")
	return api.SuccessResponse(http.StatusOK, roles, logger), nil
}

// createCognitoUser invites the user by email and returns the Cognito sub
func createCognitoUser(ctx context.Context, createReq *models.CreateUserRequest) (string, error) {
	input := &cognitoidentityprovider.AdminCreateUserInput{
		UserPoolId:             aws.String(userPoolID),
		Username:               aws.String(createReq.Email),
		DesiredDeliveryMediums: []types.DeliveryMediumType{types.DeliveryMediumTypeEmail},
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(createReq.Email)},
			{Name: aws.String("given_name"), Value: aws.String(createReq.FirstName)},
			{Name: aws.String("family_name"), Value: aws.String(createReq.LastName)},
			{Name: aws.String("email_verified"), Value: aws.String("true")},
		},
	}

	result, err := cognitoClient.AdminCreateUser(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create user in Cognito: %w", err)
	}

	if result.User != nil {
		for _, attr := range result.User.Attributes {
			if aws.ToString(attr.Name) == "sub" {
				return aws.ToString(attr.Value), nil
			}
		}
	}
	return "", fmt.Errorf("failed to get Cognito user ID from response")
}

func deleteCognitoUser(ctx context.Context, cognitoID string) error {
	_, err := cognitoClient.AdminDeleteUser(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(userPoolID),
		Username:   aws.String(cognitoID),
	})
	return err
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

	if err = data.RequireParameters(ssmParams, constants.COGNITO_USER_POOL_ID); err != nil {
		logger.WithError(err).Fatal("Missing Cognito configuration")
	}
	userPoolID = ssmParams[constants.COGNITO_USER_POOL_ID]
	cognitoClient = clients.NewCognitoIdentityProviderClient(cfg)

	if err = setupPostgresSQLClient(ssmParams); err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	logger.WithField("operation", "setup").Info("User Management Lambda initialization completed successfully")
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	var err error

	sqlDB, err = clients.NewPostgresSQLClientFromParams(ssmParams)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	userManagementRepository = &data.UserManagementDao{
		DB:     sqlDB,
		Logger: logger,
	}
	userRoleRepository = &data.UserRoleDao{
		DB:     sqlDB,
		Logger: logger,
	}
	catalog := &data.PermissionCatalogDao{
		DB:     sqlDB,
		Logger: logger,
	}
	permissionCatalog = catalog
	permissionChecker = authz.NewResolver(catalog, logger)

	logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	return nil
}
