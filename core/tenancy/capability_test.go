package tenancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitySets(t *testing.T) {
	tests := []struct {
		set     CapabilitySet
		allowed []Role
	}{
		{set: GuardianOrAbove, allowed: []Role{RoleSuperAdmin, RoleSupportAdmin, RolePrimaryGuardian, RoleGuardian}},
		{set: PrimaryGuardianOrAdmin, allowed: []Role{RoleSuperAdmin, RoleSupportAdmin, RolePrimaryGuardian}},
		{set: AdminOnly, allowed: []Role{RoleSuperAdmin, RoleSupportAdmin}},
		{set: AnyMember, allowed: AllRoles},
	}
	for _, tt := range tests {
		t.Run(tt.set.Name(), func(t *testing.T) {
			assert.ElementsMatch(t, tt.allowed, tt.set.Roles())
			for _, r := range AllRoles {
				want := false
				for _, a := range tt.allowed {
					want = want || a == r
				}
				assert.Equal(t, want, tt.set.Allows(r), "role %s", r)
			}
			assert.False(t, tt.set.Allows(RoleNone))
		})
	}
}

func TestCapabilitySet_exactMembership(t *testing.T) {
	// admins are broad in reach, not in seniority
	assert.True(t, AdminOnly.Allows(RoleSupportAdmin))
	assert.True(t, GuardianOrAbove.Allows(RoleSupportAdmin))
	assert.False(t, AdminOnly.Allows(RolePrimaryGuardian))

	assert.Equal(t, "super_admin, support_admin", AdminOnly.String())
}

func TestNewCapabilitySet(t *testing.T) {
	cs := NewCapabilitySet("custom", RoleGuardian, RoleGuardian, Role("teacher"), RoleNone, RoleStudent)
	assert.Equal(t, []Role{RoleGuardian, RoleStudent}, cs.Roles())
	assert.Equal(t, "guardian, student", cs.String())

	roles := cs.Roles()
	roles[0] = RoleSuperAdmin
	assert.False(t, cs.Allows(RoleSuperAdmin), "Roles() must return a copy")

	var zero CapabilitySet
	for _, r := range AllRoles {
		assert.False(t, zero.Allows(r))
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles {
		got, ok := ParseRole(string(r))
		assert.True(t, ok)
		assert.Equal(t, r, got)
	}
	for _, s := range []string{"", "admin", "Super_Admin", "teacher"} {
		_, ok := ParseRole(s)
		assert.False(t, ok, s)
	}
	assert.True(t, RoleSuperAdmin.IsPlatform())
	assert.True(t, RoleSupportAdmin.IsPlatform())
	assert.False(t, RolePrimaryGuardian.IsPlatform())
}

func TestJoinRoles(t *testing.T) {
	assert.Equal(t, "student, guardian, primary_guardian", JoinRoles(TenantRoles))
	assert.Equal(t, "support_admin, super_admin", JoinRoles(PlatformRoles))
	assert.Equal(t, "", JoinRoles(nil))
}
