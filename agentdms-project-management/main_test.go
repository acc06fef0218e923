package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"agentdms/lib/data"
	"agentdms/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProjectRepository struct {
	projects     map[int64]*models.Project
	lastFilter   models.ProjectFilter
	storagePaths []string
}

func (f *fakeProjectRepository) CreateProject(ctx context.Context, request *models.CreateProjectRequest, userID int64) (*models.Project, error) {
	project := &models.Project{
		ProjectID:    int64(len(f.projects) + 100),
		Name:         request.Name,
		IsActive:     true,
		CreatedBy:    userID,
		CustomFields: models.DefaultCustomFields(),
	}
	f.projects[project.ProjectID] = project
	return project, nil
}

func (f *fakeProjectRepository) GetProjects(ctx context.Context, filter models.ProjectFilter) (*models.ProjectListResponse, error) {
	f.lastFilter = filter
	list := &models.ProjectListResponse{Data: []models.Project{}, Page: filter.Page, PageSize: filter.PageSize}
	for _, project := range f.projects {
		list.Data = append(list.Data, *project)
	}
	list.TotalCount = len(list.Data)
	return list, nil
}

func (f *fakeProjectRepository) GetProjectByID(ctx context.Context, projectID int64) (*models.Project, error) {
	project, ok := f.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %d: %w", projectID, data.ErrNotFound)
	}
	return project, nil
}

func (f *fakeProjectRepository) UpdateProject(ctx context.Context, projectID int64, request *models.UpdateProjectRequest, userID int64) (*models.Project, error) {
	project, err := f.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if request.Name != nil {
		project.Name = *request.Name
	}
	if request.IsArchived != nil {
		project.IsArchived = *request.IsArchived
	}
	project.UpdatedBy = userID
	return project, nil
}

func (f *fakeProjectRepository) DeleteProject(ctx context.Context, projectID int64) ([]string, error) {
	if _, ok := f.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %d: %w", projectID, data.ErrNotFound)
	}
	delete(f.projects, projectID)
	return f.storagePaths, nil
}

func (f *fakeProjectRepository) CloneProject(ctx context.Context, projectID, userID int64) (*models.Project, error) {
	source, err := f.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	clone := *source
	clone.ProjectID = int64(len(f.projects) + 100)
	clone.Name = source.Name + " (Copy)"
	clone.CreatedBy = userID
	f.projects[clone.ProjectID] = &clone
	return &clone, nil
}

type fakeCustomFieldRepository struct {
	fields map[int64][]models.CustomField
}

func (f *fakeCustomFieldRepository) GetCustomFields(ctx context.Context, projectID int64) ([]models.CustomField, error) {
	fields := f.fields[projectID]
	if fields == nil {
		fields = []models.CustomField{}
	}
	return fields, nil
}

func (f *fakeCustomFieldRepository) AddCustomField(ctx context.Context, projectID int64, request *models.CreateCustomFieldRequest) (*models.CustomField, error) {
	field := models.CustomField{
		FieldID:     int64(len(f.fields[projectID]) + 1),
		ProjectID:   projectID,
		Name:        request.Name,
		FieldType:   request.FieldType,
		IsRemovable: true,
	}
	f.fields[projectID] = append(f.fields[projectID], field)
	return &field, nil
}

func (f *fakeCustomFieldRepository) DeleteCustomField(ctx context.Context, projectID, fieldID int64) error {
	for i, field := range f.fields[projectID] {
		if field.FieldID == fieldID {
			if !field.IsRemovable {
				return fmt.Errorf("field %d: %w", fieldID, data.ErrNotRemovable)
			}
			f.fields[projectID] = append(f.fields[projectID][:i], f.fields[projectID][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("field %d: %w", fieldID, data.ErrNotFound)
}

type fakeProjectRoleRepository struct {
	roles map[int64][]models.ProjectRole
}

func (f *fakeProjectRoleRepository) AssignProjectRole(ctx context.Context, projectID, roleID int64) (*models.ProjectRole, error) {
	role := models.ProjectRole{ProjectID: projectID, RoleID: roleID, RoleName: fmt.Sprintf("role-%d", roleID), CreatedAt: time.Now()}
	f.roles[projectID] = append(f.roles[projectID], role)
	return &role, nil
}

func (f *fakeProjectRoleRepository) GetProjectRoles(ctx context.Context, projectID int64) ([]models.ProjectRole, error) {
	return f.roles[projectID], nil
}

func (f *fakeProjectRoleRepository) RemoveProjectRole(ctx context.Context, projectID, roleID int64) error {
	for i, role := range f.roles[projectID] {
		if role.RoleID == roleID {
			f.roles[projectID] = append(f.roles[projectID][:i], f.roles[projectID][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("role %d on project %d: %w", roleID, projectID, data.ErrNotFound)
}

// fakeResolver grants workspace.admin to admins and the listed names per user and project
type fakeResolver struct {
	admins map[int64]bool
	grants map[[2]int64][]string
	err    error
}

func (f *fakeResolver) HasGlobalPermission(ctx context.Context, userID int64, permissionName string) (bool, error) {
	return f.admins[userID], f.err
}

func (f *fakeResolver) GetProjectPermissions(ctx context.Context, userID, projectID int64) (models.ProjectPermissions, error) {
	if f.err != nil {
		return models.ProjectPermissions{ProjectID: projectID, Permissions: []string{}}, f.err
	}
	names := f.grants[[2]int64{userID, projectID}]
	if names == nil {
		names = []string{}
	}
	return models.ProjectPermissions{
		ProjectID:   projectID,
		CanView:     contains(names, "document.view"),
		CanEdit:     contains(names, "document.edit"),
		Permissions: names,
	}, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

type fakeS3Client struct {
	deleted   []string
	deleteErr error
}

func (f *fakeS3Client) GenerateUploadURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return "https://upload/" + key, nil
}

func (f *fakeS3Client) GenerateDownloadURL(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	return "https://download/" + key, nil
}

func (f *fakeS3Client) DeleteObject(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return f.deleteErr
}

func (f *fakeS3Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	return true, nil
}

const (
	adminID  int64 = 2
	viewerID int64 = 3
	outsider int64 = 4
)

type fakes struct {
	projects *fakeProjectRepository
	fields   *fakeCustomFieldRepository
	roles    *fakeProjectRoleRepository
	resolver *fakeResolver
	s3       *fakeS3Client
}

func setupTest(t *testing.T) fakes {
	t.Helper()
	logger = logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	f := fakes{
		projects: &fakeProjectRepository{projects: map[int64]*models.Project{
			7: {ProjectID: 7, Name: "Contracts", IsActive: true},
		}},
		fields: &fakeCustomFieldRepository{fields: map[int64][]models.CustomField{
			7: {
				{FieldID: 1, ProjectID: 7, Name: models.DefaultFieldFilename, IsDefault: true},
				{FieldID: 4, ProjectID: 7, Name: "Document Type", IsRemovable: true},
			},
		}},
		roles: &fakeProjectRoleRepository{roles: map[int64][]models.ProjectRole{
			7: {{ProjectID: 7, RoleID: 5, RoleName: "Viewer", CanView: true}},
		}},
		resolver: &fakeResolver{
			admins: map[int64]bool{adminID: true},
			grants: map[[2]int64][]string{{viewerID, 7}: {"document.view"}},
		},
		s3: &fakeS3Client{},
	}
	projectRepository = f.projects
	customFieldRepository = f.fields
	projectRoleRepository = f.roles
	resolver = f.resolver
	s3Client = f.s3
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

func TestCreateProject(t *testing.T) {
	//Arrange
	setupTest(t)

	//Act
	resp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/projects", nil, `{"name":"Invoices"}`))

	//Assert
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var project models.Project
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &project))
	assert.Equal(t, "Invoices", project.Name)
	assert.Len(t, project.CustomFields, 3)
}

func TestCreateProjectRequiresWorkspaceAdmin(t *testing.T) {
	f := setupTest(t)

	resp, err := Handler(context.Background(), request(viewerID, http.MethodPost, "/projects", nil, `{"name":"Invoices"}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Len(t, f.projects.projects, 1)
}

func TestCreateProjectRejectsUnknownFieldType(t *testing.T) {
	setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/projects", nil,
		`{"name":"Invoices","custom_fields":[{"name":"Amount","field_type":"Money"}]}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetProjectsFiltersByViewer(t *testing.T) {
	tests := []struct {
		name       string
		userID     int64
		wantViewer int64
	}{
		{name: "workspace admin sees every project", userID: adminID, wantViewer: 0},
		{name: "other users see viewable projects", userID: viewerID, wantViewer: viewerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTest(t)
			req := request(tt.userID, http.MethodGet, "/projects", nil, "")
			req.QueryStringParameters = map[string]string{"page": "2", "page_size": "5", "include_archived": "true"}

			resp, err := Handler(context.Background(), req)

			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, models.ProjectFilter{IncludeArchived: true, ViewerID: tt.wantViewer, Page: 2, PageSize: 5}, f.projects.lastFilter)
		})
	}
}

func TestGetProjectRequiresView(t *testing.T) {
	tests := []struct {
		name   string
		userID int64
		status int
	}{
		{name: "viewer", userID: viewerID, status: http.StatusOK},
		{name: "workspace admin", userID: adminID, status: http.StatusOK},
		{name: "outsider", userID: outsider, status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTest(t)

			resp, err := Handler(context.Background(), request(tt.userID, http.MethodGet, "/projects/{projectId}", map[string]string{"projectId": "7"}, ""))

			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestGetProjectResolverErrorFailsClosed(t *testing.T) {
	f := setupTest(t)
	f.resolver.err = errors.New("connection reset")

	resp, err := Handler(context.Background(), request(viewerID, http.MethodGet, "/projects/{projectId}", map[string]string{"projectId": "7"}, ""))

	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUpdateProjectArchives(t *testing.T) {
	f := setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodPut, "/projects/{projectId}", map[string]string{"projectId": "7"}, `{"is_archived":true}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, f.projects.projects[7].IsArchived)
	assert.Equal(t, "Contracts", f.projects.projects[7].Name)
}

func TestDeleteProjectRemovesStoredObjects(t *testing.T) {
	//Arrange
	f := setupTest(t)
	f.projects.storagePaths = []string{"7/documents/a_x.pdf", "7/documents/b_y.pdf"}
	f.s3.deleteErr = errors.New("access denied")

	//Act
	resp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/projects/{projectId}", map[string]string{"projectId": "7"}, ""))

	//Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, f.projects.storagePaths, f.s3.deleted)
	assert.NotContains(t, f.projects.projects, int64(7))
}

func TestDeleteProjectNotFound(t *testing.T) {
	f := setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/projects/{projectId}", map[string]string{"projectId": "70"}, ""))

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, f.s3.deleted)
}

func TestCloneProject(t *testing.T) {
	setupTest(t)

	resp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/projects/{projectId}/clone", map[string]string{"projectId": "7"}, ""))

	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var clone models.Project
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &clone))
	assert.Equal(t, "Contracts (Copy)", clone.Name)
}

func TestCustomFieldRoutes(t *testing.T) {
	//Arrange
	f := setupTest(t)

	//Act
	listResp, err := Handler(context.Background(), request(viewerID, http.MethodGet, "/projects/{projectId}/custom-fields", map[string]string{"projectId": "7"}, ""))
	require.NoError(t, err)
	addResp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/projects/{projectId}/custom-fields", map[string]string{"projectId": "7"},
		`{"name":"Amount","field_type":"Currency"}`))
	require.NoError(t, err)
	defaultResp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/projects/{projectId}/custom-fields/{fieldId}",
		map[string]string{"projectId": "7", "fieldId": "1"}, ""))
	require.NoError(t, err)
	removableResp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/projects/{projectId}/custom-fields/{fieldId}",
		map[string]string{"projectId": "7", "fieldId": "4"}, ""))
	require.NoError(t, err)

	//Assert
	assert.Equal(t, http.StatusOK, listResp.StatusCode)
	assert.Equal(t, http.StatusCreated, addResp.StatusCode)
	assert.Equal(t, http.StatusConflict, defaultResp.StatusCode)
	assert.Equal(t, http.StatusOK, removableResp.StatusCode)
	assert.Len(t, f.fields.fields[7], 2)
}

func TestProjectRoleRoutes(t *testing.T) {
	f := setupTest(t)

	assignResp, err := Handler(context.Background(), request(adminID, http.MethodPost, "/projects/{projectId}/roles", map[string]string{"projectId": "7"}, `{"role_id":6}`))
	require.NoError(t, err)
	removeResp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/projects/{projectId}/roles/{roleId}",
		map[string]string{"projectId": "7", "roleId": "5"}, ""))
	require.NoError(t, err)
	missingResp, err := Handler(context.Background(), request(adminID, http.MethodDelete, "/projects/{projectId}/roles/{roleId}",
		map[string]string{"projectId": "7", "roleId": "5"}, ""))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, assignResp.StatusCode)
	assert.Equal(t, http.StatusOK, removeResp.StatusCode)
	assert.Equal(t, http.StatusNotFound, missingResp.StatusCode)
	require.Len(t, f.roles.roles[7], 1)
	assert.Equal(t, int64(6), f.roles.roles[7][0].RoleID)
}

func TestGetMyProjectPermissions(t *testing.T) {
	//Arrange
	setupTest(t)

	//Act
	resp, err := Handler(context.Background(), request(outsider, http.MethodGet, "/projects/{projectId}/permissions", map[string]string{"projectId": "7"}, ""))

	//Assert
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var perms models.ProjectPermissions
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &perms))
	assert.Equal(t, int64(7), perms.ProjectID)
	assert.False(t, perms.CanView)
	assert.Empty(t, perms.Permissions)
}
