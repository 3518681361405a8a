package tenancy

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Gates, in evaluation order.
const (
	GateAuthentication = "authentication"
	GateTenantBinding  = "tenant_binding"
	GateFreshness      = "freshness"
	GateRole           = "role"
)

type (
	// Directory is the authoritative source of tenant/role facts.
	// Resolve must return ErrNotFound when no account matches id.
	Directory interface {
		Resolve(ctx context.Context, id uuid.UUID) (Membership, error)
	}

	// DenialObserver is told about every request a gate refuses.
	DenialObserver func(gate string, err error)

	Authorizer struct {
		dir      Directory
		observer DenialObserver
	}
)

func NewAuthorizer(dir Directory, observer DenialObserver) *Authorizer {
	return &Authorizer{dir: dir, observer: observer}
}

// Authorize runs the four gates in order and returns a fresh RequestContext, or the first
// gate's error. It never writes.
func (a *Authorizer) Authorize(ctx context.Context, p *Principal, required CapabilitySet) (*RequestContext, error) {
	// authentication
	if p == nil || p.AccountID == uuid.Nil {
		return nil, a.deny(GateAuthentication, ErrUnauthenticated)
	}

	// tenant binding: cheap check on the (possibly stale) claims.
	// Platform roles may legitimately hold no tenant.
	if !p.Role.IsPlatform() && !validTenant(p.TenantID) {
		return nil, a.deny(GateTenantBinding, Forbidden(ReasonNoTenant))
	}

	// freshness: the directory, not the claims, is authoritative
	m, err := a.dir.Resolve(ctx, p.AccountID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, a.deny(GateFreshness, Forbidden(ReasonInvalidAccount))
		}
		return nil, errors.Wrap(err, "resolving account")
	}
	if err := checkMembership(p.AccountID, m); err != nil {
		return nil, a.deny(GateFreshness, err)
	}

	// role
	if !required.Allows(m.Role) {
		return nil, a.deny(GateRole, forbiddenRoles(required))
	}

	return &RequestContext{
		Principal: *p,
		Account:   m,
		TenantID:  m.TenantID,
		Role:      m.Role,
		Required:  required,
	}, nil
}

// Identify runs the authentication and freshness gates only. It serves operations open to
// accounts that have no tenant or role yet: the account must still exist and be active.
func (a *Authorizer) Identify(ctx context.Context, p *Principal) (Membership, error) {
	if p == nil || p.AccountID == uuid.Nil {
		return Membership{}, a.deny(GateAuthentication, ErrUnauthenticated)
	}

	m, err := a.dir.Resolve(ctx, p.AccountID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Membership{}, a.deny(GateFreshness, Forbidden(ReasonInvalidAccount))
		}
		return Membership{}, errors.Wrap(err, "resolving account")
	}
	switch {
	case m.AccountID != p.AccountID:
		return Membership{}, a.deny(GateFreshness, Forbidden(ReasonInvalidAccount))
	case !m.IsActive:
		return Membership{}, a.deny(GateFreshness, Forbidden(ReasonAccountDeactivated))
	}
	return m, nil
}

func checkMembership(id uuid.UUID, m Membership) error {
	switch {
	case m.AccountID != id:
		return Forbidden(ReasonInvalidAccount)
	case !m.Role.Valid():
		return Forbidden(ReasonInvalidAccount)
	case !m.Role.IsPlatform() && !validTenant(m.TenantID):
		return Forbidden(ReasonInvalidAccount)
	case m.TenantID.Valid && m.TenantID.UUID == uuid.Nil:
		return Forbidden(ReasonInvalidAccount)
	case !m.IsActive:
		return Forbidden(ReasonAccountDeactivated)
	}
	return nil
}

func validTenant(id uuid.NullUUID) bool {
	return id.Valid && id.UUID != uuid.Nil
}

func (a *Authorizer) deny(gate string, err error) error {
	if a.observer != nil {
		a.observer(gate, err)
	}
	return err
}
