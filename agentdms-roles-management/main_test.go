package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"agentdms/lib/data"
	"agentdms/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoleRepository struct {
	roles map[int64]*models.RoleWithPermissions
}

func (f *fakeRoleRepository) CreateRole(ctx context.Context, role *models.Role) (*models.Role, error) {
	role.RoleID = int64(len(f.roles) + 1)
	f.roles[role.RoleID] = &models.RoleWithPermissions{Role: *role}
	return role, nil
}

func (f *fakeRoleRepository) GetRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	for _, role := range f.roles {
		roles = append(roles, role.Role)
	}
	return roles, nil
}

func (f *fakeRoleRepository) GetRoleByID(ctx context.Context, roleID int64) (*models.Role, error) {
	role, ok := f.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %d: %w", roleID, data.ErrNotFound)
	}
	return &role.Role, nil
}

func (f *fakeRoleRepository) UpdateRole(ctx context.Context, roleID int64, role *models.Role) (*models.Role, error) {
	existing, ok := f.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %d: %w", roleID, data.ErrNotFound)
	}
	existing.RoleName = role.RoleName
	return &existing.Role, nil
}

func (f *fakeRoleRepository) DeleteRole(ctx context.Context, roleID int64) error {
	if _, ok := f.roles[roleID]; !ok {
		return fmt.Errorf("role %d: %w", roleID, data.ErrNotFound)
	}
	delete(f.roles, roleID)
	return nil
}

func (f *fakeRoleRepository) GetRoleWithPermissions(ctx context.Context, roleID int64) (*models.RoleWithPermissions, error) {
	role, ok := f.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %d: %w", roleID, data.ErrNotFound)
	}
	copied := *role
	return &copied, nil
}

type fakeRolePermissionRepository struct {
	assigned map[[2]int64]bool
}

func (f *fakeRolePermissionRepository) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	f.assigned[[2]int64{roleID, permissionID}] = true
	return nil
}

func (f *fakeRolePermissionRepository) UnassignPermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	key := [2]int64{roleID, permissionID}
	if !f.assigned[key] {
		return fmt.Errorf("permission %d on role %d: %w", permissionID, roleID, data.ErrNotFound)
	}
	delete(f.assigned, key)
	return nil
}

func (f *fakeRolePermissionRepository) IsPermissionAssignedToRole(ctx context.Context, roleID, permissionID int64) (bool, error) {
	return f.assigned[[2]int64{roleID, permissionID}], nil
}

type fakeFieldRestrictionRepository struct {
	restrictions []models.FieldValueRestriction
	lastCreate   *models.CreateFieldRestrictionRequest
}

func (f *fakeFieldRestrictionRepository) CreateFieldRestriction(ctx context.Context, roleID int64, request *models.CreateFieldRestrictionRequest) (*models.FieldValueRestriction, error) {
	f.lastCreate = request
	restriction := models.FieldValueRestriction{
		RestrictionID: int64(len(f.restrictions) + 1),
		RoleID:        roleID,
		CustomFieldID: request.CustomFieldID,
		Values:        request.Values,
		IsAllowList:   request.IsAllowList,
	}
	f.restrictions = append(f.restrictions, restriction)
	return &restriction, nil
}

func (f *fakeFieldRestrictionRepository) GetFieldRestrictionsByRole(ctx context.Context, roleID int64) ([]models.FieldValueRestriction, error) {
	var restrictions []models.FieldValueRestriction
	for _, restriction := range f.restrictions {
		if restriction.RoleID == roleID {
			restrictions = append(restrictions, restriction)
		}
	}
	return restrictions, nil
}

func (f *fakeFieldRestrictionRepository) UpdateFieldRestriction(ctx context.Context, roleID, restrictionID int64, request *models.UpdateFieldRestrictionRequest) (*models.FieldValueRestriction, error) {
	for i := range f.restrictions {
		if f.restrictions[i].RoleID == roleID && f.restrictions[i].RestrictionID == restrictionID {
			f.restrictions[i].Values = request.Values
			f.restrictions[i].IsAllowList = request.IsAllowList
			return &f.restrictions[i], nil
		}
	}
	return nil, fmt.Errorf("restriction %d: %w", restrictionID, data.ErrNotFound)
}

func (f *fakeFieldRestrictionRepository) DeleteFieldRestriction(ctx context.Context, roleID, restrictionID int64) error {
	for i := range f.restrictions {
		if f.restrictions[i].RoleID == roleID && f.restrictions[i].RestrictionID == restrictionID {
			f.restrictions = append(f.restrictions[:i], f.restrictions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("restriction %d: %w", restrictionID, data.ErrNotFound)
}

type stubChecker map[int64]bool

func (s stubChecker) HasGlobalPermission(ctx context.Context, userID int64, permissionName string) (bool, error) {
	return s[userID], nil
}

const (
	adminID  int64 = 2
	editorID int64 = 5
)

type fakes struct {
	roles        *fakeRoleRepository
	assignments  *fakeRolePermissionRepository
	restrictions *fakeFieldRestrictionRepository
}

func setupTest(t *testing.T) fakes {
	t.Helper()
	logger = logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	f := fakes{
		roles: &fakeRoleRepository{roles: map[int64]*models.RoleWithPermissions{
			4: {
				Role:        models.Role{RoleID: 4, RoleName: "Editor"},
				Permissions: []models.Permission{{PermissionID: 1, PermissionName: "document.view"}},
			},
		}},
		assignments:  &fakeRolePermissionRepository{assigned: map[[2]int64]bool{{4, 1}: true}},
		restrictions: &fakeFieldRestrictionRepository{},
	}
	roleRepository = f.roles
	rolePermissionRepository = f.assignments
	fieldRestrictionRepository = f.restrictions
	permissionChecker = stubChecker{adminID: true}
	return f
}

func request(userID int64, method, resource string, pathParams map[string]string, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod:     method,
		Resource:       resource,
		PathParameters: pathParams,
		Body:           body,
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{
				"user_id": fmt.Sprint(userID),
				"email":   "user@example.com",
				"sub":     "cognito-sub",
			},
		},
	}
}

func TestRoleRoutesRequireWorkspaceAdmin(t *testing.T) {
	//Arrange
	f := setupTest(t)

	//Act
	resp, err := Handler(context.Background(), request(editorID, http.MethodDelete, "/roles/{id}", map[string]string{"id": "4"}, ""))

	//Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, f.roles.roles, int64(4))
}

func TestCreateRole(t *testing.T) {
	setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/roles", nil, `{"role_name":"Reviewer"}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Role
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &created))
	assert.Equal(t, "Reviewer", created.RoleName)
}

func TestGetRoleIncludesFieldRestrictions(t *testing.T) {
	//Arrange
	f := setupTest(t)
	f.restrictions.restrictions = []models.FieldValueRestriction{
		{RestrictionID: 1, RoleID: 4, CustomFieldID: 10, Values: []string{"Draft"}, IsAllowList: true},
		{RestrictionID: 2, RoleID: 7, CustomFieldID: 10, Values: []string{"Final"}},
	}

	//Act
	resp, err := Handler(context.Background(), request(adminID, http.MethodGet, "/roles/{id}", map[string]string{"id": "4"}, ""))

	//Assert
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var role models.RoleWithPermissions
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &role))
	assert.Len(t, role.Permissions, 1)
	require.Len(t, role.FieldRestrictions, 1)
	assert.Equal(t, []string{"Draft"}, role.FieldRestrictions[0].Values)
}

func TestGetRoleWithoutRestrictionsReturnsEmptyList(t *testing.T) {
	setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodGet, "/roles/{id}", map[string]string{"id": "4"}, ""))

	require.NoError(t, err)
	assert.Contains(t, resp.Body, `"field_restrictions":[]`)
}

func TestAssignAndUnassignPermission(t *testing.T) {
	//Arrange
	f := setupTest(t)
	params := map[string]string{"id": "4"}

	//Act
	assignResp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/roles/{id}/permissions", params, `{"permission_id":3}`))
	require.NoError(t, err)
	unassignResp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/roles/{id}/permissions", params, `{"permission_id":1}`))
	require.NoError(t, err)

	//Assert
	assert.Equal(t, http.StatusOK, assignResp.StatusCode)
	assert.Equal(t, http.StatusOK, unassignResp.StatusCode)
	assert.Equal(t, map[[2]int64]bool{{4, 3}: true}, f.assignments.assigned)
}

func TestAssignPermissionAlreadyAssigned(t *testing.T) {
	setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/roles/{id}/permissions", map[string]string{"id": "4"}, `{"permission_id":1}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "already assigned")
}

func TestUnassignPermissionNotAssigned(t *testing.T) {
	setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/roles/{id}/permissions", map[string]string{"id": "4"}, `{"permission_id":9}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateFieldRestriction(t *testing.T) {
	//Arrange
	f := setupTest(t)

	//Act
	resp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/roles/{id}/field-restrictions", map[string]string{"id": "4"},
		`{"custom_field_id":10,"values":["Draft","Review"],"is_allow_list":true}`))

	//Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, f.restrictions.lastCreate)
	assert.Equal(t, []string{"Draft", "Review"}, f.restrictions.lastCreate.Values)
	assert.True(t, f.restrictions.lastCreate.IsAllowList)
}

func TestCreateFieldRestrictionRejectsEmptyValues(t *testing.T) {
	f := setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/roles/{id}/field-restrictions", map[string]string{"id": "4"},
		`{"custom_field_id":10,"values":[]}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, f.restrictions.lastCreate)
}

func TestGetFieldRestrictionsUnknownRole(t *testing.T) {
	setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodGet, "/roles/{id}/field-restrictions", map[string]string{"id": "99"}, ""))

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFieldRestrictionPathValidation(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing restriction", map[string]string{"id": "4"}},
		{"bad restriction", map[string]string{"id": "4", "restrictionId": "x"}},
		{"bad role", map[string]string{"id": "0", "restrictionId": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTest(t)

			resp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/roles/{id}/field-restrictions/{restrictionId}", tt.params, ""))

			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestUpdateAndDeleteFieldRestriction(t *testing.T) {
	//Arrange
	f := setupTest(t)
	f.restrictions.restrictions = []models.FieldValueRestriction{
		{RestrictionID: 1, RoleID: 4, CustomFieldID: 10, Values: []string{"Draft"}, IsAllowList: true},
	}
	params := map[string]string{"id": "4", "restrictionId": "1"}

	//Act
	updateResp, err := Handler(context.Background(), request(adminID, http.MethodPut, "/roles/{id}/field-restrictions/{restrictionId}", params,
		`{"values":["Final"],"is_allow_list":false}`))
	require.NoError(t, err)
	updated := f.restrictions.restrictions[0]
	deleteResp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/roles/{id}/field-restrictions/{restrictionId}", params, ""))
	require.NoError(t, err)

	//Assert
	assert.Equal(t, http.StatusOK, updateResp.StatusCode)
	assert.Equal(t, []string{"Final"}, updated.Values)
	assert.False(t, updated.IsAllowList)
	assert.Equal(t, http.StatusOK, deleteResp.StatusCode)
	assert.Empty(t, f.restrictions.restrictions)
}
