// Package tenancy holds the tenant-isolation rules shared by the request pipeline and the
// storage layer: roles, capability sets, ambient session state and the access predicate.
package tenancy

import "strings"

// Role is the capability level of an account.
type Role string

// Roles
const (
	RoleNone Role = ""

	// tenant-scoped roles
	RoleStudent         Role = "student"
	RoleGuardian        Role = "guardian"
	RolePrimaryGuardian Role = "primary_guardian"

	// platform roles, with cross-tenant reach
	RoleSupportAdmin Role = "support_admin"
	RoleSuperAdmin   Role = "super_admin"
)

var (
	TenantRoles   = []Role{RoleStudent, RoleGuardian, RolePrimaryGuardian}
	PlatformRoles = []Role{RoleSupportAdmin, RoleSuperAdmin}
	AllRoles      = []Role{RoleStudent, RoleGuardian, RolePrimaryGuardian, RoleSupportAdmin, RoleSuperAdmin}

	platformRoles = map[Role]bool{
		RoleSupportAdmin: true,
		RoleSuperAdmin:   true,
	}
)

// ParseRole returns the Role named by s, or false when s is not one of the five roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Valid reports whether r is one of the five roles. RoleNone is not valid.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleGuardian, RolePrimaryGuardian, RoleSupportAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsPlatform reports whether r reaches across tenants.
func (r Role) IsPlatform() bool {
	return platformRoles[r]
}

func (r Role) String() string {
	return string(r)
}

// JoinRoles renders roles as "student, guardian".
func JoinRoles(roles []Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
