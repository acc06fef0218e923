package authz

import (
	"context"
	"errors"
	"testing"

	"agentdms/lib/constants"
	"agentdms/lib/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fieldF  int64 = 300
	roleA   int64 = 21
	roleB   int64 = 22
	userTwo int64 = 41
)

// documentTypeField seeds field F on projectP restricted for role User to Invoice and Receipt
func documentTypeField() *fakeCatalog {
	catalog := administratorAndUser()
	catalog.fieldProject[fieldF] = projectP
	catalog.addRestriction(fieldF, 1, roleUser, `["Invoice","Receipt"]`, true)
	return catalog
}

// allowAndDenyField seeds a user whose two effective roles restrict field F
func allowAndDenyField() *fakeCatalog {
	catalog := newFakeCatalog()
	catalog.addRole(roleA, "A", constants.PermissionDocumentEdit)
	catalog.addRole(roleB, "B", constants.PermissionDocumentEdit)
	catalog.userRoles[userTwo] = []int64{roleA, roleB}
	catalog.projectRoles[projectP] = []int64{roleA, roleB}
	catalog.fieldProject[fieldF] = projectP
	catalog.addRestriction(fieldF, 1, roleA, `["X","Y"]`, true)
	catalog.addRestriction(fieldF, 2, roleB, `["Y"]`, false)
	return catalog
}

func TestValidateFieldValueAllowListCaseInsensitive(t *testing.T) {
	//Arrange
	resolver := NewResolver(documentTypeField(), quietLogger())

	//Act
	result, err := resolver.ValidateFieldValue(context.Background(), userU, fieldF, "invoice")

	//Assert
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reason)
}

func TestValidateFieldValueAllowListRejection(t *testing.T) {
	//Arrange
	resolver := NewResolver(documentTypeField(), quietLogger())

	//Act
	result, err := resolver.ValidateFieldValue(context.Background(), userU, fieldF, "Contract")

	//Assert
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "User")
	assert.Contains(t, result.Reason, "Invoice, Receipt")
}

func TestValidateFieldValueDenyListWinsOverAllowList(t *testing.T) {
	//Arrange
	resolver := NewResolver(allowAndDenyField(), quietLogger())

	//Act
	y, err := resolver.ValidateFieldValue(context.Background(), userTwo, fieldF, "Y")
	require.NoError(t, err)
	x, err := resolver.ValidateFieldValue(context.Background(), userTwo, fieldF, "x")
	require.NoError(t, err)

	//Assert
	assert.False(t, y.Valid)
	assert.Contains(t, y.Reason, "'B'")
	assert.True(t, x.Valid)
}

func TestValidateFieldValueDenyListCaseInsensitive(t *testing.T) {
	resolver := NewResolver(allowAndDenyField(), quietLogger())

	result, err := resolver.ValidateFieldValue(context.Background(), userTwo, fieldF, "y")

	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateFieldValueIsIdempotent(t *testing.T) {
	resolver := NewResolver(documentTypeField(), quietLogger())

	first, err := resolver.ValidateFieldValue(context.Background(), userU, fieldF, "Contract")
	require.NoError(t, err)
	second, err := resolver.ValidateFieldValue(context.Background(), userU, fieldF, "Contract")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestValidateFieldValueIgnoresRestrictionsOfRolesInactiveOnProject(t *testing.T) {
	//Arrange
	catalog := documentTypeField()
	catalog.addRestriction(fieldF, 2, roleAdministrator, `["Receipt"]`, false)
	resolver := NewResolver(catalog, quietLogger())

	//Act
	result, err := resolver.ValidateFieldValue(context.Background(), userU, fieldF, "Receipt")

	//Assert
	require.NoError(t, err)
	assert.True(t, result.Valid, "Administrator is not active on the project so its deny-list does not apply")
}

func TestValidateFieldValueWithoutEffectiveRoles(t *testing.T) {
	catalog := documentTypeField()
	resolver := NewResolver(catalog, quietLogger())

	result, err := resolver.ValidateFieldValue(context.Background(), 999, fieldF, "anything")

	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateFieldValueUnknownField(t *testing.T) {
	resolver := NewResolver(documentTypeField(), quietLogger())

	result, err := resolver.ValidateFieldValue(context.Background(), userU, 404, "Invoice")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "custom field not found", result.Reason)
}

func TestValidateFieldValueMalformedRestrictionFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"truncated json", `["Invoice",`},
		{"not an array", `{"values":["Invoice"]}`},
		{"null", `null`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			//Arrange
			catalog := documentTypeField()
			catalog.restrictions[fieldF][0].RawValues = tt.raw
			resolver := NewResolver(catalog, quietLogger())

			//Act
			result, err := resolver.ValidateFieldValue(context.Background(), userU, fieldF, "Invoice")

			//Assert
			assert.ErrorIs(t, err, ErrUnverifiableRestriction)
			assert.False(t, result.Valid)
			assert.Equal(t, "value could not be verified", result.Reason)
		})
	}
}

func TestValidateFieldValueMalformedDenyListFailsClosed(t *testing.T) {
	catalog := allowAndDenyField()
	catalog.restrictions[fieldF][1].RawValues = `["Y"`
	resolver := NewResolver(catalog, quietLogger())

	result, err := resolver.ValidateFieldValue(context.Background(), userTwo, fieldF, "X")

	assert.ErrorIs(t, err, ErrUnverifiableRestriction)
	assert.False(t, result.Valid)
}

func TestValidateFieldValueEmptyAllowList(t *testing.T) {
	catalog := documentTypeField()
	catalog.restrictions[fieldF][0].RawValues = `[]`
	resolver := NewResolver(catalog, quietLogger())

	result, err := resolver.ValidateFieldValue(context.Background(), userU, fieldF, "Invoice")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "does not allow any value")
}

func TestValidateFieldValueSuperAdmin(t *testing.T) {
	catalog := documentTypeField()
	resolver := NewResolver(catalog, quietLogger())

	result, err := resolver.ValidateFieldValue(context.Background(), SuperAdminUserID, fieldF, "Contract")

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Zero(t, catalog.calls)
}

func TestValidateFieldValueStoreErrorDenies(t *testing.T) {
	catalog := documentTypeField()
	catalog.err = errors.New("too many connections")
	resolver := NewResolver(catalog, quietLogger())

	result, err := resolver.ValidateFieldValue(context.Background(), userU, fieldF, "Invoice")

	assert.ErrorIs(t, err, catalog.err)
	assert.NotErrorIs(t, err, ErrUnverifiableRestriction)
	assert.False(t, result.Valid)
}

func TestValidateDocumentFields(t *testing.T) {
	//Arrange
	catalog := documentTypeField()
	catalog.fieldProject[301] = projectP
	catalog.fieldProject[900] = 555
	resolver := NewResolver(catalog, quietLogger())
	ctx := context.Background()

	//Act
	ok, err1 := resolver.ValidateDocumentFields(ctx, userU, projectP, []models.FieldValueInput{
		{CustomFieldID: fieldF, Value: "RECEIPT"},
		{CustomFieldID: 301, Value: "free text"},
	})
	rejected, err2 := resolver.ValidateDocumentFields(ctx, userU, projectP, []models.FieldValueInput{
		{CustomFieldID: 301, Value: "free text"},
		{CustomFieldID: fieldF, Value: "Contract"},
	})
	foreign, err3 := resolver.ValidateDocumentFields(ctx, userU, projectP, []models.FieldValueInput{
		{CustomFieldID: 900, Value: "x"},
	})

	//Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	assert.True(t, ok.Valid)
	assert.False(t, rejected.Valid)
	assert.Contains(t, rejected.Reason, "Invoice, Receipt")
	assert.False(t, foreign.Valid)
	assert.Contains(t, foreign.Reason, "does not belong to this project")
}

func TestValidateDocumentFieldsSuperAdminStillChecksOwnership(t *testing.T) {
	catalog := documentTypeField()
	catalog.fieldProject[900] = 555
	resolver := NewResolver(catalog, quietLogger())

	valid, err := resolver.ValidateDocumentFields(context.Background(), SuperAdminUserID, projectP, []models.FieldValueInput{{CustomFieldID: fieldF, Value: "Contract"}})
	require.NoError(t, err)
	foreign, err := resolver.ValidateDocumentFields(context.Background(), SuperAdminUserID, projectP, []models.FieldValueInput{{CustomFieldID: 900, Value: "x"}})
	require.NoError(t, err)

	assert.True(t, valid.Valid)
	assert.False(t, foreign.Valid)
}

func TestGetAllowedValuesUnionMinusDeny(t *testing.T) {
	//Arrange
	catalog := allowAndDenyField()
	catalog.addRole(23, "C", constants.PermissionDocumentEdit)
	catalog.userRoles[userTwo] = append(catalog.userRoles[userTwo], 23)
	catalog.projectRoles[projectP] = append(catalog.projectRoles[projectP], 23)
	catalog.addRestriction(fieldF, 3, 23, `["z","x"]`, true)
	resolver := NewResolver(catalog, quietLogger())

	//Act
	allowed, err := resolver.GetAllowedValues(context.Background(), userTwo, fieldF)

	//Assert
	require.NoError(t, err)
	assert.True(t, allowed.Closed)
	assert.Equal(t, []string{"X", "z"}, allowed.Values)
	assert.Equal(t, []string{"Y"}, allowed.Denied)
}

func TestGetAllowedValuesSingleAllowList(t *testing.T) {
	resolver := NewResolver(documentTypeField(), quietLogger())

	allowed, err := resolver.GetAllowedValues(context.Background(), userU, fieldF)

	require.NoError(t, err)
	assert.True(t, allowed.Closed)
	assert.Equal(t, []string{"Invoice", "Receipt"}, allowed.Values)
}

func TestGetAllowedValuesOnlyDenyListIsOpen(t *testing.T) {
	//Arrange
	catalog := allowAndDenyField()
	catalog.restrictions[fieldF] = catalog.restrictions[fieldF][1:]
	resolver := NewResolver(catalog, quietLogger())

	//Act
	allowed, err := resolver.GetAllowedValues(context.Background(), userTwo, fieldF)

	//Assert
	require.NoError(t, err)
	assert.False(t, allowed.Closed, "deny-lists alone must not read as nothing allowed")
	assert.Empty(t, allowed.Values)
	assert.NotNil(t, allowed.Values)
	assert.Equal(t, []string{"Y"}, allowed.Denied)
}

func TestGetAllowedValuesWithoutRestrictions(t *testing.T) {
	catalog := documentTypeField()
	resolver := NewResolver(catalog, quietLogger())

	allowed, err := resolver.GetAllowedValues(context.Background(), 999, fieldF)

	require.NoError(t, err)
	assert.False(t, allowed.Closed)
	assert.Empty(t, allowed.Values)
	assert.Empty(t, allowed.Denied)
}

func TestGetAllowedValuesAllowListFullyDenied(t *testing.T) {
	catalog := allowAndDenyField()
	catalog.restrictions[fieldF][1].RawValues = `["x","Y"]`
	resolver := NewResolver(catalog, quietLogger())

	allowed, err := resolver.GetAllowedValues(context.Background(), userTwo, fieldF)

	require.NoError(t, err)
	assert.True(t, allowed.Closed, "an allow-list exists so an empty result means nothing is allowed")
	assert.Empty(t, allowed.Values)
}

func TestGetAllowedValuesMalformedRestriction(t *testing.T) {
	catalog := documentTypeField()
	catalog.restrictions[fieldF][0].RawValues = `Invoice,Receipt`
	resolver := NewResolver(catalog, quietLogger())

	allowed, err := resolver.GetAllowedValues(context.Background(), userU, fieldF)

	assert.ErrorIs(t, err, ErrUnverifiableRestriction)
	assert.True(t, allowed.Closed)
	assert.Empty(t, allowed.Values)
}

func TestGetAllowedValuesUnknownField(t *testing.T) {
	resolver := NewResolver(documentTypeField(), quietLogger())

	_, err := resolver.GetAllowedValues(context.Background(), userU, 404)

	assert.ErrorIs(t, err, ErrCustomFieldNotFound)
}

func TestGetAllowedValuesSuperAdminIsOpen(t *testing.T) {
	catalog := documentTypeField()
	resolver := NewResolver(catalog, quietLogger())

	allowed, err := resolver.GetAllowedValues(context.Background(), SuperAdminUserID, fieldF)

	require.NoError(t, err)
	assert.False(t, allowed.Closed)
	assert.Zero(t, catalog.calls)
}
