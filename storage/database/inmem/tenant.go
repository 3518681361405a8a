package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/tenant"
)

type tenantRepository struct {
	db *DB
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) query(ctx context.Context) []tenant.Tenant {
	tenants := make([]tenant.Tenant, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		if visible(ctx, t.ID) {
			tenants = append(tenants, *t)
		}
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].CreatedAt.Before(tenants[j].CreatedAt) })
	return tenants
}

func (repo *tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant, _ ...core.DBExecutor) (tenant.Tenant, error) {
	if !visible(ctx, t.ID) {
		return tenant.Tenant{}, errPolicyViolation
	}
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.tenants[t.ID] = &t
	return t, nil
}

func (repo *tenantRepository) GetTenantByID(ctx context.Context, id uuid.UUID, _ ...core.DBExecutor) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.tenants[id]; ok && visible(ctx, t.ID) {
		return *t, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant, _ ...core.DBExecutor) (tenant.Tenant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.tenants[t.ID]
	if !ok || !visible(ctx, orig.ID) {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	orig.Name = t.Name
	orig.ContactEmail = t.ContactEmail
	orig.Status = t.Status
	orig.TrialEndsAt = t.TrialEndsAt
	orig.UpdatedAt = t.UpdatedAt
	return *orig, nil
}

func (repo *tenantRepository) QueryTenants(ctx context.Context, _ []core.DBOrdering, _ ...core.DBExecutor) ([]tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(ctx), nil
}

func (repo *tenantRepository) QueryOrphanTenants(ctx context.Context, _ ...core.DBExecutor) ([]tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	members := make(map[uuid.UUID]bool)
	for _, acc := range repo.db.accounts {
		if acc.TenantID.Valid {
			members[acc.TenantID.UUID] = true
		}
	}
	orphans := make([]tenant.Tenant, 0)
	for _, t := range repo.query(ctx) {
		if !members[t.ID] {
			orphans = append(orphans, t)
		}
	}
	return orphans, nil
}
