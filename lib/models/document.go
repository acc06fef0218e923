package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Upload Status constants
const (
	UploadStatusPending  = "pending"
	UploadStatusUploaded = "uploaded"
	UploadStatusFailed   = "failed"
)

// MaxDocumentSize is the largest file accepted for upload (100MB)
const MaxDocumentSize = 104857600

// Document represents a file stored in a project (iam.documents)
type Document struct {
	DocumentID   int64                `json:"document_id"`
	ProjectID    int64                `json:"project_id"`
	FileName     string               `json:"file_name"`    // Original filename
	StoragePath  string               `json:"storage_path"` // S3 key
	MimeType     string               `json:"mime_type"`
	FileSize     int64                `json:"file_size"`
	UploadStatus string               `json:"upload_status"` // "pending", "uploaded", "failed"
	CreatedAt    time.Time            `json:"created_at"`
	CreatedBy    int64                `json:"created_by"`
	UpdatedAt    time.Time            `json:"updated_at"`
	UpdatedBy    int64                `json:"updated_by"`
	IsDeleted    bool                 `json:"is_deleted"`
	FieldValues  []DocumentFieldValue `json:"field_values,omitempty"`
}

// DocumentFieldValue is the value of one custom field on one document
type DocumentFieldValue struct {
	DocumentID    int64     `json:"document_id"`
	CustomFieldID int64     `json:"custom_field_id"`
	FieldName     string    `json:"field_name,omitempty"`
	Value         string    `json:"value"`
	UpdatedAt     time.Time `json:"updated_at"`
	UpdatedBy     int64     `json:"updated_by"`
}

// FieldValueInput is a single custom field value supplied by a client
type FieldValueInput struct {
	CustomFieldID int64  `json:"custom_field_id" binding:"required,gt=0"`
	Value         string `json:"value" binding:"max=4000"`
}

// DocumentUploadRequest represents a request to get an upload URL
type DocumentUploadRequest struct {
	FileName    string            `json:"file_name" binding:"required,max=255"`
	FileSize    int64             `json:"file_size" binding:"required,gt=0,max=104857600"` // 100MB max
	FieldValues []FieldValueInput `json:"field_values,omitempty" binding:"omitempty,dive"`
}

// DocumentUploadResponse represents the response with presigned URL
type DocumentUploadResponse struct {
	DocumentID int64  `json:"document_id"`
	UploadURL  string `json:"upload_url"`
	S3Key      string `json:"s3_key"`
	ExpiresAt  string `json:"expires_at"`
}

// DocumentDownloadResponse represents the response with download URL
type DocumentDownloadResponse struct {
	DownloadURL string `json:"download_url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ExpiresAt   string `json:"expires_at"`
}

// DocumentListResponse represents a paginated list of documents
type DocumentListResponse struct {
	Documents  []Document `json:"documents"`
	TotalCount int        `json:"total_count"`
	Page       int        `json:"page,omitempty"`
	PageSize   int        `json:"page_size,omitempty"`
	HasNext    bool       `json:"has_next"`
	HasPrev    bool       `json:"has_previous"`
}

// UpdateFieldValuesRequest writes custom field values on an existing document
type UpdateFieldValuesRequest struct {
	Values []FieldValueInput `json:"values" binding:"required,min=1,dive"`
}

// GenerateDocumentKey creates the S3 key for a document: <projectID>/documents/<uniqueID>_<fileName>
func GenerateDocumentKey(projectID int64, uniqueID, fileName string) string {
	cleanFileName := strings.ReplaceAll(filepath.Base(fileName), " ", "_")
	return fmt.Sprintf("%d/documents/%s_%s", projectID, uniqueID, cleanFileName)
}

// ValidateFileType checks if the file type is allowed
func ValidateFileType(fileName string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(fileName))]
	return ok
}

// GetMimeType returns the MIME type for a file based on its extension
func GetMimeType(fileName string) string {
	if mimeType, exists := mimeTypes[strings.ToLower(filepath.Ext(fileName))]; exists {
		return mimeType
	}
	return "application/octet-stream"
}

var mimeTypes = map[string]string{
	// Documents
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".rtf":  "application/rtf",
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".webp": "image/webp",
	// Archives
	".zip": "application/zip",
	".7z":  "application/x-7z-compressed",
}
