package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

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
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DocumentResolver is the authorization surface used by document routes
type DocumentResolver interface {
	api.ProjectPermissionResolver
	ValidateFieldValue(ctx context.Context, userID, customFieldID int64, value string) (models.FieldValidation, error)
	ValidateDocumentFields(ctx context.Context, userID, projectID int64, values []models.FieldValueInput) (models.FieldValidation, error)
	GetAllowedValues(ctx context.Context, userID, customFieldID int64) (models.AllowedValues, error)
}

// Global variables for Lambda cold start optimization
var (
	logger             *logrus.Logger
	cfg                *config.Config
	ssmRepository      data.SSMRepository
	ssmParams          map[string]string
	sqlDB              *sql.DB
	documentRepository data.DocumentRepository
	resolver           DocumentResolver
	s3Client           clients.S3ClientInterface
)

// urlExpiry bounds presigned upload and download URLs; setup replaces it with URL_EXPIRY
var urlExpiry = 15 * time.Minute

// Handler processes API Gateway requests for documents and their custom field values
func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"method":    request.HTTPMethod,
		"resource":  request.Resource,
		"operation": "Handler",
	}).Debug("Document management request received")

	ctx, claims, resp, ok := api.Authenticate(ctx, request, logger)
	if !ok {
		return resp, nil
	}

	switch {
	case request.Resource == "/projects/{projectId}/documents/upload-url" && request.HTTPMethod == http.MethodPost:
		return handleGenerateUploadURL(ctx, request, claims)
	case request.Resource == "/projects/{projectId}/documents" && request.HTTPMethod == http.MethodGet:
		return handleGetProjectDocuments(ctx, request, claims)
	case request.Resource == "/documents/{id}" && request.HTTPMethod == http.MethodGet:
		return withDocument(ctx, request, claims, constants.PermissionDocumentView, handleGetDocument)
	case request.Resource == "/documents/{id}" && request.HTTPMethod == http.MethodDelete:
		return withDocument(ctx, request, claims, constants.PermissionDocumentDelete, handleDeleteDocument)
	case request.Resource == "/documents/{id}/download-url" && request.HTTPMethod == http.MethodGet:
		return withDocument(ctx, request, claims, constants.PermissionDocumentView, handleGenerateDownloadURL)
	case request.Resource == "/documents/{id}/confirm" && request.HTTPMethod == http.MethodPost:
		return withDocument(ctx, request, claims, constants.PermissionDocumentEdit, handleConfirmUpload)
	case request.Resource == "/documents/{id}/field-values" && request.HTTPMethod == http.MethodPut:
		return withDocument(ctx, request, claims, constants.PermissionDocumentEdit, handleSetFieldValues)
	case request.Resource == "/custom-fields/{fieldId}/allowed-values" && request.HTTPMethod == http.MethodGet:
		return handleGetAllowedValues(ctx, request, claims)
	case request.Resource == "/custom-fields/{fieldId}/validate" && request.HTTPMethod == http.MethodPost:
		return handleValidateFieldValue(ctx, request, claims)
	default:
		logger.WithFields(logrus.Fields{
			"method":   request.HTTPMethod,
			"resource": request.Resource,
		}).Warn("Endpoint not found")
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
}

type documentHandler func(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims, document *models.Document) (events.APIGatewayProxyResponse, error)

// withDocument loads the document named by the id path parameter and requires permissionName
// on its project before calling next
func withDocument(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims, permissionName string, next documentHandler) (events.APIGatewayProxyResponse, error) {
	documentID, err := api.PathID(request, "id")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid document ID", logger), nil
	}

	document, err := documentRepository.GetDocument(ctx, documentID)
	if err != nil {
		return api.StoreErrorResponse(err, "get document", logger), nil
	}

	if _, resp, ok := api.RequireProjectPermission(ctx, resolver, claims, document.ProjectID, permissionName, logger); !ok {
		return resp, nil
	}
	return next(ctx, request, claims, document)
}

// checkFieldValues runs every value through the field restrictions of the caller's
// effective roles. ok is false when a response has already been produced.
func checkFieldValues(ctx context.Context, claims *auth.Claims, projectID int64, values []models.FieldValueInput) (events.APIGatewayProxyResponse, bool) {
	if len(values) == 0 {
		return events.APIGatewayProxyResponse{}, true
	}

	result, err := resolver.ValidateDocumentFields(ctx, claims.UserID, projectID, values)
	if err != nil {
		return api.StoreErrorResponse(err, "validate field values", logger), false
	}
	if !result.Valid {
		logger.WithFields(logrus.Fields{
			"user_id":    claims.UserID,
			"project_id": projectID,
			"reason":     result.Reason,
		}).Warn("Field value rejected")
		return api.ForbiddenResponse(result.Reason, logger), false
	}
	return events.APIGatewayProxyResponse{}, true
}

// handleGenerateUploadURL handles POST /projects/{projectId}/documents/upload-url
func handleGenerateUploadURL(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	var uploadReq models.DocumentUploadRequest
	if err := api.ParseJSONBody(request.Body, &uploadReq); err != nil {
		logger.WithError(err).Error("Failed to parse upload URL request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&uploadReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid upload request", errs, logger), nil
	}
	if !models.ValidateFileType(uploadReq.FileName) {
		return api.ErrorResponse(http.StatusBadRequest, "File type not allowed", logger), nil
	}

	if _, resp, ok := api.RequireProjectPermission(ctx, resolver, claims, projectID, constants.PermissionDocumentEdit, logger); !ok {
		return resp, nil
	}
	if resp, ok := checkFieldValues(ctx, claims, projectID, uploadReq.FieldValues); !ok {
		return resp, nil
	}

	s3Key := models.GenerateDocumentKey(projectID, uuid.New().String(), uploadReq.FileName)
	mimeType := models.GetMimeType(uploadReq.FileName)

	document, err := documentRepository.CreateDocument(ctx, &models.Document{
		ProjectID:   projectID,
		FileName:    uploadReq.FileName,
		StoragePath: s3Key,
		MimeType:    mimeType,
		FileSize:    uploadReq.FileSize,
		CreatedBy:   claims.UserID,
	}, uploadReq.FieldValues)
	if err != nil {
		return api.StoreErrorResponse(err, "create document", logger), nil
	}

	uploadURL, err := s3Client.GenerateUploadURL(ctx, s3Key, mimeType, urlExpiry)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"document_id": document.DocumentID,
			"error":       err.Error(),
		}).Error("Failed to generate upload URL")
		if statusErr := documentRepository.UpdateUploadStatus(ctx, document.DocumentID, models.UploadStatusFailed, claims.UserID); statusErr != nil {
			logger.WithError(statusErr).Warn("Failed to mark document upload as failed")
		}
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to generate upload URL", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, models.DocumentUploadResponse{
		DocumentID: document.DocumentID,
		UploadURL:  uploadURL,
		S3Key:      s3Key,
		ExpiresAt:  time.Now().Add(urlExpiry).Format(time.RFC3339),
	}, logger), nil
}

// handleGetProjectDocuments handles GET /projects/{projectId}/documents
func handleGetProjectDocuments(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	projectID, err := api.PathID(request, "projectId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid project ID", logger), nil
	}

	if _, resp, ok := api.RequireProjectPermission(ctx, resolver, claims, projectID, constants.PermissionDocumentView, logger); !ok {
		return resp, nil
	}

	documents, err := documentRepository.GetDocumentsByProject(ctx, projectID,
		api.QueryInt(request, "page", 1), api.QueryInt(request, "page_size", 20))
	if err != nil {
		return api.StoreErrorResponse(err, "get documents", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, documents, logger), nil
}

// handleGetDocument handles GET /documents/{id}
func handleGetDocument(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims, document *models.Document) (events.APIGatewayProxyResponse, error) {
	return api.SuccessResponse(http.StatusOK, document, logger), nil
}

// handleDeleteDocument handles DELETE /documents/{id}. The stored object is kept.
func handleDeleteDocument(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims, document *models.Document) (events.APIGatewayProxyResponse, error) {
	if err := documentRepository.SoftDeleteDocument(ctx, document.DocumentID, claims.UserID); err != nil {
		return api.StoreErrorResponse(err, "delete document", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"document_id": document.DocumentID,
		"deleted_by":  claims.UserID,
	}).Info("Document deleted")
	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "Document deleted successfully"}, logger), nil
}

// handleGenerateDownloadURL handles GET /documents/{id}/download-url
func handleGenerateDownloadURL(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims, document *models.Document) (events.APIGatewayProxyResponse, error) {
	if document.UploadStatus != models.UploadStatusUploaded {
		return api.ErrorResponse(http.StatusConflict, "Document upload is not complete", logger), nil
	}

	downloadURL, err := s3Client.GenerateDownloadURL(ctx, document.StoragePath, document.FileName, urlExpiry)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"document_id": document.DocumentID,
			"error":       err.Error(),
		}).Error("Failed to generate download URL")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to generate download URL", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, models.DocumentDownloadResponse{
		DownloadURL: downloadURL,
		FileName:    document.FileName,
		FileSize:    document.FileSize,
		ExpiresAt:   time.Now().Add(urlExpiry).Format(time.RFC3339),
	}, logger), nil
}

// handleConfirmUpload handles POST /documents/{id}/confirm and marks the document uploaded
// once its object is present in the bucket
func handleConfirmUpload(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims, document *models.Document) (events.APIGatewayProxyResponse, error) {
	exists, err := s3Client.ObjectExists(ctx, document.StoragePath)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"document_id": document.DocumentID,
			"error":       err.Error(),
		}).Error("Failed to check document object")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to confirm upload", logger), nil
	}
	if !exists {
		return api.ErrorResponse(http.StatusConflict, "Document has not been uploaded", logger), nil
	}

	if err := documentRepository.UpdateUploadStatus(ctx, document.DocumentID, models.UploadStatusUploaded, claims.UserID); err != nil {
		return api.StoreErrorResponse(err, "confirm upload", logger), nil
	}

	logger.WithFields(logrus.Fields{
		"document_id": document.DocumentID,
		"user_id":     claims.UserID,
	}).Info("Upload confirmed")
	return api.SuccessResponse(http.StatusOK, map[string]string{"status": models.UploadStatusUploaded}, logger), nil
}

// handleSetFieldValues handles PUT /documents/{id}/field-values
func handleSetFieldValues(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims, document *models.Document) (events.APIGatewayProxyResponse, error) {
	var valuesReq models.UpdateFieldValuesRequest
	if err := api.ParseJSONBody(request.Body, &valuesReq); err != nil {
		logger.WithError(err).Error("Failed to parse field values request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&valuesReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid field values", errs, logger), nil
	}

	if resp, ok := checkFieldValues(ctx, claims, document.ProjectID, valuesReq.Values); !ok {
		return resp, nil
	}

	values, err := documentRepository.SetFieldValues(ctx, document.DocumentID, valuesReq.Values, claims.UserID)
	if err != nil {
		return api.StoreErrorResponse(err, "update field values", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, values, logger), nil
}

// handleGetAllowedValues handles GET /custom-fields/{fieldId}/allowed-values
func handleGetAllowedValues(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	fieldID, err := api.PathID(request, "fieldId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid field ID", logger), nil
	}

	allowed, err := resolver.GetAllowedValues(ctx, claims.UserID, fieldID)
	if err != nil {
		return api.StoreErrorResponse(err, "get allowed values", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, allowed, logger), nil
}

// handleValidateFieldValue handles POST /custom-fields/{fieldId}/validate.
// A rejected value is a 200 carrying valid=false and the reason.
func handleValidateFieldValue(ctx context.Context, request events.APIGatewayProxyRequest, claims *auth.Claims) (events.APIGatewayProxyResponse, error) {
	fieldID, err := api.PathID(request, "fieldId")
	if err != nil {
		return api.ErrorResponse(http.StatusBadRequest, "Invalid field ID", logger), nil
	}

	var validateReq models.ValidateFieldValueRequest
	if err := api.ParseJSONBody(request.Body, &validateReq); err != nil {
		logger.WithError(err).Error("Failed to parse validate request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger), nil
	}
	if errs := api.ValidateStruct(&validateReq); len(errs) > 0 {
		return api.ValidationErrorResponse("Invalid value", errs, logger), nil
	}

	result, err := resolver.ValidateFieldValue(ctx, claims.UserID, fieldID, validateReq.Value)
	if err != nil {
		return api.StoreErrorResponse(err, "validate field value", logger), nil
	}

	return api.SuccessResponse(http.StatusOK, result, logger), nil
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
	urlExpiry = cfg.URLExpiry

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

	logger.WithFields(logrus.Fields{
		"operation": "setup",
		"bucket":    bucket,
	}).Info("Document Management Lambda initialization completed successfully")
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	var err error

	sqlDB, err = clients.NewPostgresSQLClientFromParams(ssmParams)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	documentRepository = &data.DocumentDao{
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
