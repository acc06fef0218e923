package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"agentdms/lib/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var documentRowColumns = []string{"id", "project_id", "file_name", "storage_path", "mime_type", "file_size",
	"upload_status", "created_at", "created_by", "updated_at", "updated_by", "is_deleted"}

func documentRow(id, projectID int64, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(documentRowColumns).
		AddRow(id, projectID, "contract.pdf", "5/documents/abc_contract.pdf", "application/pdf", int64(2048),
			status, now, int64(3), now, int64(3), false)
}

func TestCreateDocumentWithFieldValues(t *testing.T) {
	//Arrange
	db, mock, logger := newMockDB(t)
	dao := &DocumentDao{DB: db, Logger: logger}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO iam.documents`).
		WithArgs(int64(5), "contract.pdf", "5/documents/abc_contract.pdf", "application/pdf", int64(2048),
			models.UploadStatusPending, int64(3)).
		WillReturnRows(documentRow(70, 5, models.UploadStatusPending))
	mock.ExpectQuery(`INSERT INTO iam.document_field_value`).
		WithArgs(int64(70), int64(11), "EMEA", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"value", "updated_at", "updated_by"}).AddRow("EMEA", time.Now(), int64(3)))
	mock.ExpectCommit()

	//Act
	document, err := dao.CreateDocument(context.Background(), &models.Document{
		ProjectID:   5,
		FileName:    "contract.pdf",
		StoragePath: "5/documents/abc_contract.pdf",
		MimeType:    "application/pdf",
		FileSize:    2048,
		CreatedBy:   3,
	}, []models.FieldValueInput{{CustomFieldID: 11, Value: "EMEA"}})

	//Assert
	require.NoError(t, err)
	assert.Equal(t, int64(70), document.DocumentID)
	assert.Equal(t, models.UploadStatusPending, document.UploadStatus)
	require.Len(t, document.FieldValues, 1)
	assert.Equal(t, "EMEA", document.FieldValues[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDocumentUnknownField(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &DocumentDao{DB: db, Logger: logger}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO iam.documents`).WillReturnRows(documentRow(70, 5, models.UploadStatusPending))
	mock.ExpectQuery(`INSERT INTO iam.document_field_value`).WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectRollback()

	_, err := dao.CreateDocument(context.Background(), &models.Document{ProjectID: 5, CreatedBy: 3},
		[]models.FieldValueInput{{CustomFieldID: 999, Value: "x"}})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentWithFieldValues(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &DocumentDao{DB: db, Logger: logger}

	mock.ExpectQuery(`FROM iam.documents d`).WithArgs(int64(70)).WillReturnRows(documentRow(70, 5, models.UploadStatusUploaded))
	mock.ExpectQuery(`FROM iam.document_field_value v`).WithArgs(int64(70)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "custom_field_id", "name", "value", "updated_at", "updated_by"}).
			AddRow(int64(70), int64(11), "Region", "EMEA", time.Now(), int64(3)))

	document, err := dao.GetDocument(context.Background(), 70)

	require.NoError(t, err)
	assert.Equal(t, int64(5), document.ProjectID)
	require.Len(t, document.FieldValues, 1)
	assert.Equal(t, "Region", document.FieldValues[0].FieldName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentNotFound(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &DocumentDao{DB: db, Logger: logger}

	mock.ExpectQuery(`FROM iam.documents d`).WillReturnError(sql.ErrNoRows)

	_, err := dao.GetDocument(context.Background(), 70)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentsByProject(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &DocumentDao{DB: db, Logger: logger}

	mock.ExpectQuery(`SELECT COUNT`).WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(`FROM iam.documents d`).WithArgs(int64(5), 20, 0).WillReturnRows(documentRow(70, 5, models.UploadStatusUploaded))

	list, err := dao.GetDocumentsByProject(context.Background(), 5, 0, 0)

	require.NoError(t, err)
	assert.Equal(t, 21, list.TotalCount)
	assert.True(t, list.HasNext)
	assert.False(t, list.HasPrev)
	assert.Len(t, list.Documents, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUploadStatusNotFound(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &DocumentDao{DB: db, Logger: logger}

	mock.ExpectExec(`UPDATE iam.documents`).WithArgs(int64(70), models.UploadStatusUploaded, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := dao.UpdateUploadStatus(context.Background(), 70, models.UploadStatusUploaded, 3)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteDocument(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &DocumentDao{DB: db, Logger: logger}

	mock.ExpectExec(`SET is_deleted = TRUE`).WithArgs(int64(70), int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))

	err := dao.SoftDeleteDocument(context.Background(), 70, 3)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetFieldValuesUpserts(t *testing.T) {
	//Arrange
	db, mock, logger := newMockDB(t)
	dao := &DocumentDao{DB: db, Logger: logger}
	valueRows := func(v string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"value", "updated_at", "updated_by"}).AddRow(v, time.Now(), int64(4))
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`ON CONFLICT \(document_id, custom_field_id\) DO UPDATE`).
		WithArgs(int64(70), int64(11), "APAC", int64(4)).WillReturnRows(valueRows("APAC"))
	mock.ExpectQuery(`ON CONFLICT \(document_id, custom_field_id\) DO UPDATE`).
		WithArgs(int64(70), int64(12), "Final", int64(4)).WillReturnRows(valueRows("Final"))
	mock.ExpectExec(`UPDATE iam.documents`).WithArgs(int64(70), int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	//Act
	written, err := dao.SetFieldValues(context.Background(), 70, []models.FieldValueInput{
		{CustomFieldID: 11, Value: "APAC"},
		{CustomFieldID: 12, Value: "Final"},
	}, 4)

	//Assert
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, int64(12), written[1].CustomFieldID)
	assert.Equal(t, int64(4), written[1].UpdatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
