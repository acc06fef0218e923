package models

// ProjectPermissions is the outcome of resolving a user's capabilities on one project.
// CanView, CanEdit and CanDelete are a projection of Permissions onto the document permissions.
type ProjectPermissions struct {
	ProjectID    int64    `json:"project_id"`
	CanView      bool     `json:"can_view"`
	CanEdit      bool     `json:"can_edit"`
	CanDelete    bool     `json:"can_delete"`
	Unrestricted bool     `json:"unrestricted"`
	Permissions  []string `json:"permissions"`
}

// Has reports whether the permission name was granted. Names compare exactly.
func (p ProjectPermissions) Has(permissionName string) bool {
	if p.Unrestricted {
		return true
	}
	for _, name := range p.Permissions {
		if name == permissionName {
			return true
		}
	}
	return false
}

// FieldValidation is the result of checking a candidate value against field restrictions
type FieldValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// AllowedValues describes which values a user may write into a custom field.
// When Closed is false the set is open ended and Values is empty; Denied still lists exclusions.
type AllowedValues struct {
	CustomFieldID int64    `json:"custom_field_id"`
	Values        []string `json:"values"`
	Closed        bool     `json:"closed"`
	Denied        []string `json:"denied,omitempty"`
}

// ValidateFieldValueRequest asks whether a value may be written into a custom field
type ValidateFieldValueRequest struct {
	Value string `json:"value" binding:"max=4000"`
}

// RoleScope is the role picture of one user on one project, read in a single query.
// EffectiveRoleIDs is the intersection of the user's roles and the project's roles.
type RoleScope struct {
	UserRoleCount    int
	ProjectRoleCount int
	EffectiveRoleIDs []int64
}
