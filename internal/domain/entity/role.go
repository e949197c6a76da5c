package entity

// RoleID identifies an approver role in the institution hierarchy
type RoleID string

const (
	RoleSuperAdmin  RoleID = "superadmin"
	RoleRegionAdmin RoleID = "regionadmin"
	RoleSektorAdmin RoleID = "sektoradmin"
	RoleSchoolAdmin RoleID = "schooladmin"
	RoleTeacher     RoleID = "teacher"
)

// ScopeKind describes how far a role's authority reaches in the
// institution tree.
type ScopeKind int

const (
	// ScopeGlobal matches any institution.
	ScopeGlobal ScopeKind = iota
	// ScopeSubtree matches institutions in the subtree rooted at the
	// actor's own institution, inclusive.
	ScopeSubtree
	// ScopeOwn matches only the actor's own institution.
	ScopeOwn
)

var roleScopes = map[RoleID]ScopeKind{
	RoleSuperAdmin:  ScopeGlobal,
	RoleRegionAdmin: ScopeSubtree,
	RoleSektorAdmin: ScopeSubtree,
	RoleSchoolAdmin: ScopeOwn,
	RoleTeacher:     ScopeOwn,
}

// Scope returns the authority reach of the role. Unknown roles get the
// narrowest scope.
func (r RoleID) Scope() ScopeKind {
	if s, ok := roleScopes[r]; ok {
		return s
	}
	return ScopeOwn
}

// IsValid returns true if the role is a known role
func (r RoleID) IsValid() bool {
	_, ok := roleScopes[r]
	return ok
}

// String returns the string representation of the role
func (r RoleID) String() string {
	return string(r)
}
