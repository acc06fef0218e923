// Package authz answers authorization questions for the document management API:
// workspace-wide permissions, permissions on a project, and which literal values a
// user may write into a custom field.
//
// Every answer is derived from the database on each call. A user's power within a
// project is bounded by the roles the project has activated: the effective roles are
// the intersection of the user's roles and the project's roles, never their union.
// Any store failure is returned as an error alongside a denying result.
package authz

import (
	"errors"

	"agentdms/lib/auth"
	"agentdms/lib/constants"
	"agentdms/lib/data"

	"github.com/sirupsen/logrus"
)

// SuperAdminUserID bypasses every resolver. It is checked first and nowhere else.
const SuperAdminUserID = auth.SuperAdminUserID

var (
	// ErrUnverifiableRestriction marks a stored restriction whose value list cannot be decoded.
	// It is distinct from a denial so corrupted configuration can be detected.
	ErrUnverifiableRestriction = errors.New("field value restriction could not be verified")

	// ErrCustomFieldNotFound is returned by GetAllowedValues for an unknown field
	ErrCustomFieldNotFound = errors.New("custom field not found")
)

// Resolver evaluates permissions against the permission catalog
type Resolver struct {
	Catalog data.PermissionCatalog
	Logger  *logrus.Logger
}

// NewResolver creates a Resolver reading from catalog
func NewResolver(catalog data.PermissionCatalog, logger *logrus.Logger) *Resolver {
	return &Resolver{Catalog: catalog, Logger: logger}
}

func isSuperAdmin(userID int64) bool {
	return userID == SuperAdminUserID
}

// documentPermissions are the names projected onto ProjectPermissions flags
var documentPermissions = []string{
	constants.PermissionDocumentView,
	constants.PermissionDocumentEdit,
	constants.PermissionDocumentDelete,
}
