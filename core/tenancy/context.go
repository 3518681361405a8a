package tenancy

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated identity carried by a session token.
// TenantID and Role are claims made when the token was issued; they may be stale.
type Principal struct {
	AccountID uuid.UUID
	Subject   string
	Email     string
	Name      string
	TenantID  uuid.NullUUID
	Role      Role
}

// Membership is what the Account Directory currently says about an account.
type Membership struct {
	AccountID uuid.UUID
	TenantID  uuid.NullUUID
	Role      Role
	IsActive  bool
}

// RequestContext is built from scratch for every operation by the Authorizer.
type RequestContext struct {
	Principal Principal
	Account   Membership
	TenantID  uuid.NullUUID // always valid for tenant roles
	Role      Role
	Required  CapabilitySet
}

// Ambient is the session state storage work for this request runs under.
func (rc *RequestContext) Ambient() Ambient {
	return Ambient{TenantID: rc.TenantID, Role: rc.Role}
}

type requestContextKey struct{}

// WithRequest attaches rc to ctx.
func WithRequest(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext attached to ctx, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
