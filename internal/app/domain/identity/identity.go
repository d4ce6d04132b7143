// Package identity models the caller identity claims the core consumes.
// Credential verification and token issuance are out of scope; this package
// only defines the shape the core relies on once a caller is authenticated.
package identity

// Role is the closed set of roles the transition table and API authorization
// checks reference.
type Role string

const (
	RoleCitizen      Role = "CITIZEN"
	RoleStaff        Role = "STAFF"
	RoleDeptHead     Role = "DEPT_HEAD"
	RoleAdmin        Role = "ADMIN"
	RoleCommissioner Role = "COMMISSIONER"
	RoleSuperAdmin   Role = "SUPER_ADMIN"
	// RoleSystem is never carried by an inbound request; it is assigned
	// internally to the scheduler's actor for SYSTEM-triggered audit entries.
	RoleSystem Role = "SYSTEM"
)

// Actor is the caller identity a request is authorized against: a user id
// plus role, and for staff/dept-head roles, the department they belong to.
type Actor struct {
	UserID       int64
	Role         Role
	DepartmentID *int64
}

// IsSystem reports whether this actor is the scheduler's pseudo-identity.
func (a Actor) IsSystem() bool { return a.Role == RoleSystem }

// System is the pseudo-identity recorded in audit entries produced by
// schedulers rather than humans.
var System = Actor{Role: RoleSystem}
