package account

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/tenancy"
)

// OrderingFields are the fields member listings can be ordered by.
var OrderingFields = []string{"name", "email", "role", "created_at", "last_login"}

type Account struct {
	ID        uuid.UUID     `json:"id"`
	Subject   string        `json:"-"` // identity provider subject
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	TenantID  uuid.NullUUID `json:"tenant_id"`
	Role      tenancy.Role  `json:"role"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"` // UTC
	UpdatedAt time.Time     `json:"updated_at"` // UTC
	LastLogin time.Time     `json:"last_login"` // UTC
}

// IsBound reports whether onboarding is complete: tenant and role are set.
// Platform accounts need no tenant.
func (a Account) IsBound() bool {
	if a.Role.IsPlatform() {
		return true
	}
	return a.TenantID.Valid && a.TenantID.UUID != uuid.Nil && a.Role.Valid()
}

func (a Account) Membership() tenancy.Membership {
	return tenancy.Membership{
		AccountID: a.ID,
		TenantID:  a.TenantID,
		Role:      a.Role,
		IsActive:  a.IsActive,
	}
}

// NewPlatformAccount contains information needed to bootstrap a platform administrator.
type NewPlatformAccount struct {
	Subject string `json:"subject" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"omitempty,displayname"`
	Role    string `json:"role" validate:"required,platformrole"`
}

func (na *NewPlatformAccount) Validate(validate *validator.Validate) error {
	na.Subject = core.CleanString(na.Subject)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Name = core.CleanString(na.Name)
	if na.Name == "" {
		na.Name = na.Email
	}
	return validate.Struct(na)
}

// UpdateRole is the payload tenant actors send to change the role of a member.
type UpdateRole struct {
	Role string `json:"role" validate:"required,tenantrole"`
}

func (ur *UpdateRole) Validate(validate *validator.Validate) error {
	ur.Role = core.CleanString(ur.Role, true /* lower */)
	return validate.Struct(ur)
}

// SetRole is used by platform tooling, which may assign any of the five roles.
type SetRole struct {
	Role string `json:"role" validate:"required,approle"`
}

func (sr *SetRole) Validate(validate *validator.Validate) error {
	sr.Role = core.CleanString(sr.Role, true /* lower */)
	return validate.Struct(sr)
}
