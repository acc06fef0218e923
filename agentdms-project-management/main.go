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
	logger                *logrus.Logger
	cfg                   *config.Config
	ssmRepository         data.SSMRepository
	ssmParams             map[string]string
	sqlDB                 *sql.DB
	projectRepository     data.ProjectRepository
	customFieldRepository data.CustomFieldRepository
	projectRoleRepository data.ProjectRoleRepository
	resolver              api.ProjectPermissionResolver
	s3Client              clients.S3ClientInterface
)

// Handler processes API Gateway requests for project management.
// Reads require document.view on the project or workspace.admin; every mutation requires workspace.admin.
func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"method":    request.HTTPMethod,
		"resource":  request.Resource,
		"operation": "Handler",
	}).Debug("Project management request received")

	ctx, claims, resp, ok := api.Authenticate(ctx, request, logger)
	if !ok {
		return resp, nil
	}

	switch {
	case request.Resource == "/projects" && request.HTTPMethod == http.MethodPost:
		return withAdmin(ctx, claims, func() (events.APIGatewayProxyResponse, error) {
			return handleCreateProject(ctx, request, claims)
		})
	case request.Resource == "/projects" && request.HTTPMethod == http.MethodGet:
		return handleGetProjects(ctx, request, claims)
	case request.Resource == "/projects/{projectId}" && request.HTTPMethod == http.MethodGet:
		return withProjectView(ctx, request, claims, handleGetProject)
	case request.Resource == "/projects/{projectId}" && request.HTTPMethod == http.MethodPut:
		return withAdmin(ctx, claims, func() (events.APIGatewayProxyResponse, error) {
			return handleUpdateProject(ctx, request, claims)
		})
	case request.Resource == "/projects/{projectId}" && request.HTTPMethod == http.MethodDelete:
		return withAdmin(ctx, claims, func() (events.APIGatewayProxyResponse, error) {
			return handleDeleteProject(ctx, request)
		})
	case request.Resource == "/projects/{projectId}/clone" && request.HTTPMethod == http.MethodPost:
		return withAdmin(ctx, claims, func() (events.APIGatewayProxyResponse, error) {
			return handleCloneProject(ctx, request, claims)
		})
	case request.Resource == "/projects/{projectId}/custom-fields" && request.HTTPMethod == http.MethodGet:
		return withProjectView(ctx, request, claims, handleGetCustomFields)
	case request.Resource == "/projects/{projectId}/custom-fields" && request.HTTPMethod == http.MethodPost:
		return withAdmin(ctx, claims, func() (events.APIGatewayProxyResponse, error) {
			return handleAddCustomField(ctx, request)
		})
	case request.Resource == "/projects/{projectId}/custom-fields/{fieldId}" && request.HTTPMethod == http.MethodDelete:
		return withAdmin(ctx, claims, func() (events.APIGatewayProxyResponse, error) {
			return handleDeleteCustomField(ctx, request)
		})
	case request.Resource == "/projects/{projectId}/roles" && request.HTTPMethod == http.MethodGet:
		return withProjectView(ctx, request, claims, handleGetProjectRoles)
	case request.Resource == "/projects/{projectId}/roles" && request.HTTPMethod == http.MethodPost:
		return withAdmin(ctx, claims, func() (events.APIGatewayProxyResponse, error) {
			return handleAssignProjectRole(ctx, request)
		})
	case request.Resource == "/projects/{projectId}/roles/{roleId}" && request.HTTPMethod == http.MethodDelete:
		return withAdmin(ctx, claims, func() (events.APIGatewayProxyResponse, error) {
			return handleRemoveProjectRole(ctx, request)
		})
	case request.Resource == "/projects/{projectId}/permissions" && request.HTTPMethod == http.MethodGet:
		return handleGetMyProjectPermissions(ctx, request, claims)
	default:
		logger.WithFields(logrus.Fields{
			"method":   request.HTTPMethod,
			"resource": request.Resource,
		}).Warn("Endpoint not found")
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
}

func withAdmin(ctx context.Context, claims *auth.Claims, next func() (events.APIGatewayProxyResponse, error)) (events.APIGatewayProxyResponse, error) {
	if resp, ok := api.RequireGlobalPermission(ctx, resolver, claims, constants.PermissionWorkspaceAdmin, logger); !ok {
		return resp, nil
	}
	return next()
}

// withProjectView parses projectId and lets workspace administrators and users holding
// document.view on the project through to next
func withProjectView(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims,
	next func(ctx context.Context, projectID int64) (events.APIGatewayProxyResponse, error)) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	isAdmin, err := resolver.HasGlobalPermission(ctx, claims.UserID, constants.PermissionWorkspaceAdmin)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve global permission")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to verify permissions", logger), nil
	}
	if !isAdmin {
		if _, resp, ok := api.RequireProjectPermission(ctx, resolver, claims, projectID, constants.PermissionDocumentView, logger); !ok {
			return resp, nil
		}
	}
	return next(ctx, projectID)
}

// handleCreateProject handles POST /projects
func handleCreateProject(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	var createReq models.CreateProjectRequest
	if err := api.ParseJSONBody(request.Body, &createReq); err != nil {
		logger.WithError(err).Error("Failed to parse create project request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&createReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid project", errs, logger), nil
	}

	project, err := projectRepository.CreateProject(ctx, &createReq, claims.UserID)
	if err != nil {
		return api.StoreErrorResponse(err, "create project", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"project_id": project.ProjectID,
		"created_by": claims.UserID,
	}).Info("Project created")
	return api.SuccessResponse(http.StatusCreated, project, logger), nil
}

// handleGetProjects handles GET /projects. Workspace administrators see every project;
// other users see the projects where one of their effective roles grants document.view.
func handleGetProjects(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	isAdmin, err := resolver.HasGlobalPermission(ctx, claims.UserID, constants.PermissionWorkspaceAdmin)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve global permission")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to verify permissions", logger), nil
	}

	filter := models.ProjectFilter{
		IncludeArchived: api.QueryBool(request, "include_archived"),
		Page:            api.QueryInt(request, "page", 1),
		PageSize:        api.QueryInt(request, "page_size", 20),
	}
	if !isAdmin {
		filter.ViewerID = claims.UserID
	}

	projects, err := projectRepository.GetProjects(ctx, filter)
	if err != nil {
		return api.StoreErrorResponse(err, "get projects", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, projects, logger), nil
}

// handleGetProject handles GET /projects/{projectId}
func handleGetProject(ctx context.Context, projectID int64) (events.APIGatewayProxyResponse, error) {
	project, err := projectRepository.GetProjectByID(ctx, projectID)
	if err != nil {
		return api.StoreErrorResponse(err, "get project", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, project, logger), nil
}

// handleUpdateProject handles PUT /projects/{projectId}
func handleUpdateProject(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	var updateReq models.UpdateProjectRequest
	if err := api.ParseJSONBody(request.Body, &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update project request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&updateReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid project", errs, logger), nil
	}

	project, err := projectRepository.UpdateProject(ctx, projectID, &updateReq, claims.UserID)
	if err != nil {
		return api.StoreErrorResponse(err, "update project", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, project, logger), nil
}

// handleDeleteProject handles DELETE /projects/{projectId}. Stored objects are removed after
// the rows are gone; a failed object delete is logged and does not fail the request.
func handleDeleteProject(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	storagePaths, err := projectRepository.DeleteProject(ctx, projectID)
	if err != nil {
		return api.StoreErrorResponse(err, "delete project", logger), nil
	}

	failed := 0
	for _, key := range storagePaths {
		if err := s3Client.DeleteObject(ctx, key); err != nil {
			failed++
			logger.WithFields(logrus.Fields{
				"project_id": projectID,
				"s3_key":     key,
				"error":      err.Error(),
			}).Warn("Failed to delete document object")
		}
	}

	logger.WithFields(logrus.Fields{
		"project_id":      projectID,
		"objects_deleted": len(storagePaths) - failed,
		"objects_failed":  failed,
	}).Info("Project deleted")
	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Project deleted successfully"}, logger), nil
}

// handleCloneProject handles POST /projects/{projectId}/clone
func handleCloneProject(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	clone, err := projectRepository.CloneProject(ctx, projectID, claims.UserID)
	if err != nil {
		return api.StoreErrorResponse(err, "clone project", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"source_project_id": projectID,
		"project_id":        clone.ProjectID,
	}).Info("Project cloned")
	return api.SuccessResponse(http.StatusCreated, clone, logger), nil
}

// handleGetCustomFields handles GET /projects/{projectId}/custom-fields
func handleGetCustomFields(ctx context.Context, projectID int64) (events.APIGatewayProxyResponse, error) {
	fields, err := customFieldRepository.GetCustomFields(ctx, projectID)
	if err != nil {
		return api.StoreErrorResponse(err, "get custom fields", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, fields, logger), nil
}

// handleAddCustomField handles POST /projects/{projectId}/custom-fields
func handleAddCustomField(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	var fieldReq models.CreateCustomFieldRequest
	if err := api.ParseJSONBody(request.Body, &fieldReq); err != nil {
		logger.WithError(err).Error("Failed to parse create custom field request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&fieldReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid custom field", errs, logger), nil
	}

	field, err := customFieldRepository.AddCustomField(ctx, projectID, &fieldReq)
	if err != nil {
		return api.StoreErrorResponse(err, "add custom field", logger), nil
	}

	return api.SuccessResponse(http.StatusCreated, field, logger), nil
}

// handleDeleteCustomField handles DELETE /projects/{projectId}/custom-fields/{fieldId}
func handleDeleteCustomField(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}
	fieldID, err := api.PathID(request, "fieldId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid field ID", logger), nil
	}

	if err := customFieldRepository.DeleteCustomField(ctx, projectID, fieldID); err != nil {
		return api.StoreErrorResponse(err, "delete custom field", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Custom field deleted successfully"}, logger), nil
}

// handleGetProjectRoles handles GET /projects/{projectId}/roles
func handleGetProjectRoles(ctx context.Context, projectID int64) (events.APIGatewayProxyResponse, error) {
	roles, err := projectRoleRepository.GetProjectRoles(ctx, projectID)
	if err != nil {
		return api.StoreErrorResponse(err, "get project roles", logger), nil
	}
	if roles == nil {
		roles = []models.ProjectRole{}
	}

	return api.SuccessResponse(http.StatusOK, roles, logger), nil
}

// handleAssignProjectRole handles POST /projects/{projectId}/roles
func handleAssignProjectRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	var assignReq models.AssignProjectRoleRequest
	if err := api.ParseJSONBody(request.Body, &assignReq); err != nil {
		logger.WithError(err).Error("Failed to parse assign project role request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&assignReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid role assignment", errs, logger), nil
	}

	projectRole, err := projectRoleRepository.AssignProjectRole(ctx, projectID, assignReq.RoleID)
	if err != nil {
		return api.StoreErrorResponse(err, "assign project role", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"project_id": projectID,
		"role_id":    assignReq.RoleID,
	}).Info("Role activated on project")
	return api.SuccessResponse(http.StatusCreated, projectRole, logger), nil
}

// handleRemoveProjectRole handles DELETE /projects/{projectId}/roles/{roleId}
func handleRemoveProjectRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}
	roleID, err := api.PathID(request, "roleId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid role ID", logger), nil
	}

	if err := projectRoleRepository.RemoveProjectRole(ctx, projectID, roleID); err != nil {
		return api.StoreErrorResponse(err, "remove project role", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Role removed from project successfully"}, logger), nil
}

// handleGetMyProjectPermissions handles GET /projects/{projectId}/permissions and reports
// the caller's own capabilities on the project
func handleGetMyProjectPermissions(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	perms, err := resolver.GetProjectPermissions(ctx, claims.UserID, projectID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"user_id":    claims.UserID,
			"project_id": projectID,
			"error":      err.Error(),
		}).Error("Failed to resolve project permissions")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to get project permissions", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, perms, logger), nil
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

	bucket, err := clients.DocumentBucket(cfg, ssmParams)
	if err != nil {
		logger.WithError(err).Fatal("Error resolving document bucket")
	}
	s3Client = clients.NewS3Client(cfg, bucket)

	if err = setupPostgresSQLClient(ssmParams); err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	logger.WithField("operation", "setup").Info("Project Management Lambda initialization completed successfully")
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	var err error

	sqlDB, err = clients.NewPostgresSQLClientFromParams(ssmParams)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	projectRepository = &data.ProjectDao{
		DB:     sqlDB,
		Logger: logger,
	}
	customFieldRepository = &data.CustomFieldDao{
		DB:     sqlDB,
		Logger: logger,
	}
	projectRoleRepository = &data.ProjectRoleDao{
		DB:     sqlDB,
		Logger: logger,
	}
	resolver = authz.NewResolver(&data.PermissionCatalogDao{
		DB:     sqlDB,
		Logger: logger,
	}, logger)

	logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	return nil
}
