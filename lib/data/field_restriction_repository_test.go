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

var restrictionRowColumns = []string{"id", "role_id", "name", "custom_field_id", "restricted_values",
	"is_allow_list", "created_at", "updated_at"}

func TestCreateFieldRestrictionEncodesValues(t *testing.T) {
	//Arrange
	db, mock, logger := newMockDB(t)
	dao := &FieldRestrictionDao{DB: db, Logger: logger}
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO iam.field_value_restriction`).
		WithArgs(int64(3), int64(11), `["EMEA","APAC"]`, true).
		WillReturnRows(sqlmock.NewRows(restrictionRowColumns).
			AddRow(int64(8), int64(3), "Sales", int64(11), `["EMEA","APAC"]`, true, now, now))

	//Act
	restriction, err := dao.CreateFieldRestriction(context.Background(), 3, &models.CreateFieldRestrictionRequest{
		CustomFieldID: 11,
		Values:        []string{"EMEA", "APAC"},
		IsAllowList:   true,
	})

	//Assert
	require.NoError(t, err)
	assert.Equal(t, "Sales", restriction.RoleName)
	assert.Equal(t, []string{"EMEA", "APAC"}, restriction.Values)
	assert.True(t, restriction.IsAllowList)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFieldRestrictionMissingRoleOrField(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "role missing", err: sql.ErrNoRows},
		{name: "field missing", err: &pq.Error{Code: "23503"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, logger := newMockDB(t)
			dao := &FieldRestrictionDao{DB: db, Logger: logger}
			mock.ExpectQuery(`INSERT INTO iam.field_value_restriction`).WillReturnError(tt.err)

			_, err := dao.CreateFieldRestriction(context.Background(), 3, &models.CreateFieldRestrictionRequest{
				CustomFieldID: 11,
				Values:        []string{"EMEA"},
			})

			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetFieldRestrictionsByRoleToleratesCorruptValues(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &FieldRestrictionDao{DB: db, Logger: logger}
	now := time.Now()

	mock.ExpectQuery(`FROM iam.field_value_restriction f`).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(restrictionRowColumns).
			AddRow(int64(8), int64(3), "Sales", int64(11), `["Secret"]`, false, now, now).
			AddRow(int64(9), int64(3), "Sales", int64(12), `{not json`, true, now, now).
			AddRow(int64(10), int64(3), "Sales", int64(13), ``, true, now, now))

	restrictions, err := dao.GetFieldRestrictionsByRole(context.Background(), 3)

	require.NoError(t, err)
	require.Len(t, restrictions, 3)
	assert.Equal(t, []string{"Secret"}, restrictions[0].Values)
	assert.Equal(t, []string{}, restrictions[1].Values)
	assert.Equal(t, []string{}, restrictions[2].Values)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldRestrictionNotOwnedByRole(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &FieldRestrictionDao{DB: db, Logger: logger}

	mock.ExpectQuery(`UPDATE iam.field_value_restriction`).
		WithArgs(int64(3), int64(8), `["Draft"]`, false).
		WillReturnError(sql.ErrNoRows)

	_, err := dao.UpdateFieldRestriction(context.Background(), 3, 8, &models.UpdateFieldRestrictionRequest{Values: []string{"Draft"}})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFieldRestriction(t *testing.T) {
	db, mock, logger := newMockDB(t)
	dao := &FieldRestrictionDao{DB: db, Logger: logger}

	mock.ExpectExec(`DELETE FROM iam.field_value_restriction`).WithArgs(int64(3), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := dao.DeleteFieldRestriction(context.Background(), 3, 8)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
