package tenancy

// CapabilitySet is a named, static set of roles an operation requires.
// Membership is a table lookup: roles are not ordered.
type CapabilitySet struct {
	name  string
	roles []Role
	index map[Role]struct{}
}

var (
	GuardianOrAbove        = NewCapabilitySet("guardian-or-above", RoleSuperAdmin, RoleSupportAdmin, RolePrimaryGuardian, RoleGuardian)
	PrimaryGuardianOrAdmin = NewCapabilitySet("primary-guardian-or-admin", RoleSuperAdmin, RoleSupportAdmin, RolePrimaryGuardian)
	AdminOnly              = NewCapabilitySet("admin-only", RoleSuperAdmin, RoleSupportAdmin)

	// AnyMember admits every role, students included.
	AnyMember = NewCapabilitySet("any-member", RoleSuperAdmin, RoleSupportAdmin, RolePrimaryGuardian, RoleGuardian, RoleStudent)
)

// NewCapabilitySet builds a custom set. Invalid roles are ignored.
func NewCapabilitySet(name string, roles ...Role) CapabilitySet {
	cs := CapabilitySet{
		name:  name,
		roles: make([]Role, 0, len(roles)),
		index: make(map[Role]struct{}, len(roles)),
	}
	for _, r := range roles {
		if _, dup := cs.index[r]; dup || !r.Valid() {
			continue
		}
		cs.index[r] = struct{}{}
		cs.roles = append(cs.roles, r)
	}
	return cs
}

// Allows reports whether role is a member of the set. The zero CapabilitySet allows nobody.
func (cs CapabilitySet) Allows(role Role) bool {
	_, ok := cs.index[role]
	return ok
}

func (cs CapabilitySet) Name() string { return cs.name }

// Roles returns the members in declaration order.
func (cs CapabilitySet) Roles() []Role {
	roles := make([]Role, len(cs.roles))
	copy(roles, cs.roles)
	return roles
}

// String enumerates the members, e.g. "super_admin, support_admin".
func (cs CapabilitySet) String() string {
	return JoinRoles(cs.roles)
}
