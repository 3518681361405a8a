package tenant

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeroom/core"
)

// Subscription statuses
const (
	StatusTrialing = "trialing"
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// OrderingFields are the fields tenant listings can be ordered by.
var OrderingFields = []string{"name", "status", "trial_ends_at", "created_at"}

// Tenant is a family or organization. Tenants are never deleted.
type Tenant struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email"`
	Status       string    `json:"status"`
	TrialEndsAt  null.Time `json:"trial_ends_at"` // UTC
	CreatedAt    time.Time `json:"created_at"`    // UTC
	UpdatedAt    time.Time `json:"updated_at"`    // UTC
}

func (t Tenant) InTrial(now time.Time) bool {
	return t.Status == StatusTrialing && t.TrialEndsAt.Valid && now.Before(t.TrialEndsAt.Time)
}

// UpdateTenant defines what information may be provided to modify the settings of a Tenant.
type UpdateTenant struct {
	Name         string `json:"name" validate:"omitempty,displayname"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
}

func (ut *UpdateTenant) Validate(validate *validator.Validate, orig Tenant) error {
	name := core.CleanString(ut.Name)
	if name != "" {
		ut.Name = name
	} else {
		ut.Name = orig.Name
	}

	email := core.CleanString(ut.ContactEmail, true /* lower */)
	if email != "" {
		ut.ContactEmail = email
	} else {
		ut.ContactEmail = orig.ContactEmail
	}
	return validate.Struct(ut)
}
