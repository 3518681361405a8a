package tenancy

import (
	"github.com/pkg/errors"
)

var (
	ErrUnauthenticated = errors.New("please sign in")

	// ErrNotFound is returned for rows that are absent or filtered out by tenant policies.
	// Callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")
)

// Forbidden reasons
const (
	ReasonNoTenant           = "must belong to a tenant"
	ReasonInvalidAccount     = "invalid user or tenant data"
	ReasonAccountDeactivated = "account deactivated"
)

// ForbiddenError is returned when an identity is present but may not perform the operation.
type ForbiddenError struct {
	Reason string
}

func Forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}

func forbiddenRoles(cs CapabilitySet) error {
	return Forbidden("requires one of: " + cs.String())
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// IsForbidden reports whether the cause of err is a ForbiddenError.
func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*ForbiddenError)
	return ok
}
