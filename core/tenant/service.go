package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/tenancy"
)

var ErrNotFound = errors.New("tenant not found")

type (
	Repository interface {
		CreateTenant(ctx context.Context, t Tenant, exec ...core.DBExecutor) (Tenant, error)
		GetTenantByID(ctx context.Context, id uuid.UUID, exec ...core.DBExecutor) (Tenant, error)
		UpdateTenant(ctx context.Context, t Tenant, exec ...core.DBExecutor) (Tenant, error)
		QueryTenants(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Tenant, error)
		// QueryOrphanTenants lists tenants no account belongs to: leftovers of an interrupted onboarding.
		QueryOrphanTenants(ctx context.Context, exec ...core.DBExecutor) ([]Tenant, error)
	}

	Service struct {
		repo Repository
		uow  core.UnitOfWork
	}
)

func NewService(repo Repository, uow core.UnitOfWork) *Service {
	return &Service{repo: repo, uow: uow}
}

// Get returns the tenant of the request.
func (svc *Service) Get(ctx context.Context, rc *tenancy.RequestContext) (Tenant, error) {
	if !rc.TenantID.Valid {
		return Tenant{}, ErrNotFound
	}

	var t Tenant
	err := svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		t, err = svc.repo.GetTenantByID(ctx, rc.TenantID.UUID, exec)
		return err
	})
	if err != nil {
		return Tenant{}, err
	}
	if !tenancy.HasTenantAccess(rc.Ambient(), t.ID) {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (svc *Service) UpdateSettings(ctx context.Context, rc *tenancy.RequestContext, ut UpdateTenant) (Tenant, error) {
	if !rc.TenantID.Valid {
		return Tenant{}, ErrNotFound
	}

	var t Tenant
	err := svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		orig, err := svc.repo.GetTenantByID(ctx, rc.TenantID.UUID, exec)
		if err != nil {
			return err
		}
		if !tenancy.HasTenantAccess(rc.Ambient(), orig.ID) {
			return ErrNotFound
		}
		orig.Name = ut.Name
		orig.ContactEmail = ut.ContactEmail
		orig.UpdatedAt = time.Now().UTC()
		t, err = svc.repo.UpdateTenant(ctx, orig, exec)
		return err
	})
	return t, err
}

// List returns every tenant visible to the request: all of them for super_admin.
func (svc *Service) List(ctx context.Context, rc *tenancy.RequestContext, ordering []core.DBOrdering) ([]Tenant, error) {
	amb := rc.Ambient()
	var tenants []Tenant
	err := svc.uow.Run(ctx, amb, func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		tenants, err = svc.repo.QueryTenants(ctx, ordering, exec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return filterVisible(amb, tenants), nil
}

// Orphans lists tenants left without members. amb is normally a super_admin ambient.
func (svc *Service) Orphans(ctx context.Context, amb tenancy.Ambient) ([]Tenant, error) {
	var tenants []Tenant
	err := svc.uow.Run(ctx, amb, func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		tenants, err = svc.repo.QueryOrphanTenants(ctx, exec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return filterVisible(amb, tenants), nil
}

func filterVisible(amb tenancy.Ambient, tenants []Tenant) []Tenant {
	visible := make([]Tenant, 0, len(tenants))
	for _, t := range tenants {
		if tenancy.HasTenantAccess(amb, t.ID) {
			visible = append(visible, t)
		}
	}
	return visible
}
