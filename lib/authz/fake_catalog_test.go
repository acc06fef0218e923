package authz

import (
	"context"
	"io"
	"sort"

	"agentdms/lib/models"

	"github.com/sirupsen/logrus"
)

// fakeCatalog is an in-memory permission catalog mirroring the relational joins
type fakeCatalog struct {
	userRoles    map[int64][]int64
	projectRoles map[int64][]int64
	rolePerms    map[int64][]string
	roleNames    map[int64]string
	fieldProject map[int64]int64
	restrictions map[int64][]models.FieldRestrictionRecord // keyed by custom field

	err   error
	calls int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		userRoles:    map[int64][]int64{},
		projectRoles: map[int64][]int64{},
		rolePerms:    map[int64][]string{},
		roleNames:    map[int64]string{},
		fieldProject: map[int64]int64{},
		restrictions: map[int64][]models.FieldRestrictionRecord{},
	}
}

func (f *fakeCatalog) UserHasPermission(ctx context.Context, userID int64, permissionName string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	for _, roleID := range f.userRoles[userID] {
		for _, name := range f.rolePerms[roleID] {
			if name == permissionName {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeCatalog) UserPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.namesFor(f.userRoles[userID]), nil
}

func (f *fakeCatalog) UserRoleNames(ctx context.Context, userID int64) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var names []string
	for _, roleID := range f.userRoles[userID] {
		names = append(names, f.roleNames[roleID])
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeCatalog) ProjectRoleScope(ctx context.Context, userID, projectID int64) (models.RoleScope, error) {
	f.calls++
	if f.err != nil {
		return models.RoleScope{}, f.err
	}
	onProject := map[int64]bool{}
	for _, roleID := range f.projectRoles[projectID] {
		onProject[roleID] = true
	}
	scope := models.RoleScope{
		UserRoleCount:    len(f.userRoles[userID]),
		ProjectRoleCount: len(f.projectRoles[projectID]),
	}
	for _, roleID := range f.userRoles[userID] {
		if onProject[roleID] {
			scope.EffectiveRoleIDs = append(scope.EffectiveRoleIDs, roleID)
		}
	}
	sort.Slice(scope.EffectiveRoleIDs, func(i, j int) bool { return scope.EffectiveRoleIDs[i] < scope.EffectiveRoleIDs[j] })
	return scope, nil
}

func (f *fakeCatalog) PermissionNamesForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.namesFor(roleIDs), nil
}

func (f *fakeCatalog) CustomFieldProjectID(ctx context.Context, customFieldID int64) (int64, bool, error) {
	f.calls++
	if f.err != nil {
		return 0, false, f.err
	}
	projectID, ok := f.fieldProject[customFieldID]
	return projectID, ok, nil
}

func (f *fakeCatalog) RestrictionsForRoles(ctx context.Context, roleIDs []int64, customFieldID int64) ([]models.FieldRestrictionRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	wanted := map[int64]bool{}
	for _, roleID := range roleIDs {
		wanted[roleID] = true
	}
	var out []models.FieldRestrictionRecord
	for _, record := range f.restrictions[customFieldID] {
		if wanted[record.RoleID] {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeCatalog) namesFor(roleIDs []int64) []string {
	seen := map[string]bool{}
	var names []string
	for _, roleID := range roleIDs {
		for _, name := range f.rolePerms[roleID] {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (f *fakeCatalog) addRole(roleID int64, name string, perms ...string) {
	f.roleNames[roleID] = name
	f.rolePerms[roleID] = perms
}

func (f *fakeCatalog) addRestriction(customFieldID, restrictionID, roleID int64, rawValues string, isAllowList bool) {
	f.restrictions[customFieldID] = append(f.restrictions[customFieldID], models.FieldRestrictionRecord{
		RestrictionID: restrictionID,
		RoleID:        roleID,
		RoleName:      f.roleNames[roleID],
		RawValues:     rawValues,
		IsAllowList:   isAllowList,
	})
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
