package tenancy

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Session variables read by the storage policy functions.
const (
	SettingTenant = "app.current_tenant"
	SettingRole   = "app.current_role"
)

var (
	ErrAmbientRole   = errors.New("ambient role is invalid")
	ErrAmbientTenant = errors.New("ambient tenant is required for tenant roles")
)

// Ambient is the session state a unit of work runs under.
type Ambient struct {
	TenantID uuid.NullUUID
	Role     Role
}

// NewAmbient returns the ambient state for a tenant-bound role.
func NewAmbient(tenantID uuid.UUID, role Role) Ambient {
	return Ambient{TenantID: uuid.NullUUID{UUID: tenantID, Valid: tenantID != uuid.Nil}, Role: role}
}

// PlatformAmbient returns the ambient state of a platform role with no tenant binding.
func PlatformAmbient(role Role) Ambient {
	return Ambient{Role: role}
}

// Validate refuses states that must never reach the storage engine:
// an unknown role, or a tenant role without a tenant.
func (a Ambient) Validate() error {
	if !a.Role.Valid() {
		return ErrAmbientRole
	}
	if a.TenantID.Valid && a.TenantID.UUID == uuid.Nil {
		return ErrAmbientTenant
	}
	if !a.TenantID.Valid && !a.Role.IsPlatform() {
		return ErrAmbientTenant
	}
	return nil
}

// TenantSetting is the value written to SettingTenant; "" when there is no tenant.
func (a Ambient) TenantSetting() string {
	if !a.TenantID.Valid {
		return ""
	}
	return a.TenantID.UUID.String()
}

// RoleSetting is the value written to SettingRole.
func (a Ambient) RoleSetting() string {
	return string(a.Role)
}

// CurrentTenant parses a raw SettingTenant value.
// Unset, empty and malformed values all yield false, never an error.
func CurrentTenant(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// HasTenantAccess is the one access predicate of the application layer.
// It has the same semantics as the storage function has_tenant_access():
// super_admin reaches every tenant, everybody else only their ambient tenant.
func HasTenantAccess(a Ambient, target uuid.UUID) bool {
	if a.Role == RoleSuperAdmin {
		return true
	}
	current, ok := CurrentTenant(a.TenantSetting())
	return ok && current == target
}
