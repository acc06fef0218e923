package data

import (
	"context"
	"database/sql"
	"fmt"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// DocumentRepository defines the interface for document operations
type DocumentRepository interface {
	CreateDocument(ctx context.Context, document *models.Document, values []models.FieldValueInput) (*models.Document, error)
	GetDocument(ctx context.Context, documentID int64) (*models.Document, error)
	GetDocumentsByProject(ctx context.Context, projectID int64, page, pageSize int) (*models.DocumentListResponse, error)
	UpdateUploadStatus(ctx context.Context, documentID int64, status string, userID int64) error
	SoftDeleteDocument(ctx context.Context, documentID, userID int64) error
	SetFieldValues(ctx context.Context, documentID int64, values []models.FieldValueInput, userID int64) ([]models.DocumentFieldValue, error)
}

// DocumentDao implements the DocumentRepository interface
type DocumentDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const documentColumns = `d.id, d.project_id, d.file_name, d.storage_path, d.mime_type, d.file_size,
		       d.upload_status, d.created_at, d.created_by, d.updated_at, d.updated_by, d.is_deleted`

func scanDocument(scanner interface{ Scan(...interface{}) error }, document *models.Document) error {
	return scanner.Scan(
		&document.DocumentID,
		&document.ProjectID,
		&document.FileName,
		&document.StoragePath,
		&document.MimeType,
		&document.FileSize,
		&document.UploadStatus,
		&document.CreatedAt,
		&document.CreatedBy,
		&document.UpdatedAt,
		&document.UpdatedBy,
		&document.IsDeleted,
	)
}

// CreateDocument creates a pending document record with its initial field values
func (dao *DocumentDao) CreateDocument(ctx context.Context, document *models.Document, values []models.FieldValueInput) (*models.Document, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for document creation")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	created := &models.Document{}
	err = scanDocument(tx.QueryRowContext(ctx, `
		INSERT INTO iam.documents AS d (
			project_id, file_name, storage_path, mime_type, file_size, upload_status,
			created_by, updated_by, is_deleted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7, FALSE)
		RETURNING `+documentColumns,
		document.ProjectID,
		document.FileName,
		document.StoragePath,
		document.MimeType,
		document.FileSize,
		models.UploadStatusPending,
		document.CreatedBy,
	), created)
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("project %d: %w", document.ProjectID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"project_id": document.ProjectID,
			"file_name":  document.FileName,
		}).Error("Failed to create document")
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	created.FieldValues, err = upsertFieldValues(ctx, tx, created.DocumentID, values, document.CreatedBy)
	if err != nil {
		dao.Logger.WithError(err).WithField("document_id", created.DocumentID).Error("Failed to write document field values")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit document creation transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"document_id": created.DocumentID,
		"project_id":  created.ProjectID,
		"file_name":   created.FileName,
		"field_count": len(created.FieldValues),
	}).Info("Document created successfully")

	return created, nil
}

// GetDocument retrieves a document that is not deleted, with its field values
func (dao *DocumentDao) GetDocument(ctx context.Context, documentID int64) (*models.Document, error) {
	document := &models.Document{}
	err := scanDocument(dao.DB.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM iam.documents d
		WHERE d.id = $1 AND d.is_deleted = FALSE
	`, documentID), document)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithError(err).WithField("document_id", documentID).Error("Failed to get document")
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	document.FieldValues, err = queryFieldValues(ctx, dao.DB, documentID)
	if err != nil {
		dao.Logger.WithError(err).WithField("document_id", documentID).Error("Failed to get document field values")
		return nil, err
	}

	return document, nil
}

// GetDocumentsByProject retrieves a page of the project's documents, newest first
func (dao *DocumentDao) GetDocumentsByProject(ctx context.Context, projectID int64, page, pageSize int) (*models.DocumentListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int
	err := dao.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM iam.documents
		WHERE project_id = $1 AND is_deleted = FALSE
	`, projectID).Scan(&total)
	if err != nil {
		dao.Logger.WithError(err).WithField("project_id", projectID).Error("Failed to count documents")
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	rows, err := dao.DB.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM iam.documents d
		WHERE d.project_id = $1 AND d.is_deleted = FALSE
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT $2 OFFSET $3
	`, projectID, pageSize, (page-1)*pageSize)
	if err != nil {
		dao.Logger.WithError(err).WithField("project_id", projectID).Error("Failed to get documents by project")
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	documents := []models.Document{}
	for rows.Next() {
		var document models.Document
		if err := scanDocument(rows, &document); err != nil {
			dao.Logger.WithError(err).WithField("project_id", projectID).Error("Failed to scan document row")
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, document)
	}

	if err = rows.Err(); err != nil {
		dao.Logger.WithError(err).WithField("project_id", projectID).Error("Row iteration error")
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"project_id":      projectID,
		"documents_count": len(documents),
	}).Debug("Retrieved documents for project")

	return &models.DocumentListResponse{
		Documents:  documents,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		HasNext:    page*pageSize < total,
		HasPrev:    page > 1,
	}, nil
}

// UpdateUploadStatus records the result of a client upload
func (dao *DocumentDao) UpdateUploadStatus(ctx context.Context, documentID int64, status string, userID int64) error {
	result, err := dao.DB.ExecContext(ctx, `
		UPDATE iam.documents
		SET upload_status = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`, documentID, status, userID)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"document_id": documentID,
			"status":      status,
		}).Error("Failed to update document upload status")
		return fmt.Errorf("failed to update upload status: %w", err)
	}

	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}

	dao.Logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"status":      status,
	}).Debug("Document upload status updated")

	return nil
}

// SoftDeleteDocument marks a document as deleted
func (dao *DocumentDao) SoftDeleteDocument(ctx context.Context, documentID, userID int64) error {
	result, err := dao.DB.ExecContext(ctx, `
		UPDATE iam.documents
		SET is_deleted = TRUE, updated_by = $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`, documentID, userID)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"document_id": documentID,
			"user_id":     userID,
		}).Error("Failed to soft delete document")
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		return fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}

	dao.Logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"user_id":     userID,
	}).Info("Document soft deleted successfully")

	return nil
}

// SetFieldValues writes custom field values on a document, replacing earlier values of the same fields
func (dao *DocumentDao) SetFieldValues(ctx context.Context, documentID int64, values []models.FieldValueInput, userID int64) ([]models.DocumentFieldValue, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to start transaction for field values")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	written, err := upsertFieldValues(ctx, tx, documentID, values, userID)
	if err != nil {
		dao.Logger.WithError(err).WithField("document_id", documentID).Error("Failed to write document field values")
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE iam.documents SET updated_by = $2, updated_at = NOW() WHERE id = $1
	`, documentID, userID)
	if err != nil {
		dao.Logger.WithError(err).WithField("document_id", documentID).Error("Failed to touch document")
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithError(err).Error("Failed to commit field values transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"field_count": len(written),
		"user_id":     userID,
	}).Info("Document field values updated")

	return written, nil
}

func upsertFieldValues(ctx context.Context, tx *sql.Tx, documentID int64, values []models.FieldValueInput, userID int64) ([]models.DocumentFieldValue, error) {
	written := []models.DocumentFieldValue{}
	for _, input := range values {
		value := models.DocumentFieldValue{DocumentID: documentID, CustomFieldID: input.CustomFieldID}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO iam.document_field_value (document_id, custom_field_id, value, updated_by, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (document_id, custom_field_id) DO UPDATE
			SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
			RETURNING value, updated_at, updated_by
		`, documentID, input.CustomFieldID, input.Value, userID).Scan(&value.Value, &value.UpdatedAt, &value.UpdatedBy)
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("custom field %d: %w", input.CustomFieldID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write field value: %w", err)
		}
		written = append(written, value)
	}
	return written, nil
}

func queryFieldValues(ctx context.Context, q queryer, documentID int64) ([]models.DocumentFieldValue, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT v.document_id, v.custom_field_id, cf.name, v.value, v.updated_at, v.updated_by
		FROM iam.document_field_value v
		JOIN iam.custom_field cf ON cf.id = v.custom_field_id
		WHERE v.document_id = $1
		ORDER BY cf.display_order ASC, cf.id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query field values: %w", err)
	}
	defer rows.Close()

	values := []models.DocumentFieldValue{}
	for rows.Next() {
		var value models.DocumentFieldValue
		err := rows.Scan(
			&value.DocumentID,
			&value.CustomFieldID,
			&value.FieldName,
			&value.Value,
			&value.UpdatedAt,
			&value.UpdatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field value: %w", err)
		}
		values = append(values, value)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating field values: %w", err)
	}

	return values, nil
}
