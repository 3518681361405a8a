package account_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/identity"
	"github.com/trezcool/homeroom/core/tenancy"
	"github.com/trezcool/homeroom/core/tenant"
	"github.com/trezcool/homeroom/storage/database/inmem"
)

type fixture struct {
	svc     *account.Service
	repo    account.Repository
	tenants tenant.Repository
	uow     core.UnitOfWork
}

func newFixture() fixture {
	db := inmemdb.Open()
	f := fixture{
		repo:    inmemdb.NewAccountRepository(db),
		tenants: inmemdb.NewTenantRepository(db),
		uow:     inmemdb.NewUnitOfWork(db),
	}
	f.svc = account.NewService(f.repo, f.tenants, f.uow)
	return f
}

func (f fixture) allTenants(t *testing.T) []tenant.Tenant {
	var tenants []tenant.Tenant
	err := f.uow.Run(context.Background(), tenancy.PlatformAmbient(tenancy.RoleSuperAdmin), func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		tenants, err = f.tenants.QueryTenants(ctx, nil, exec)
		return err
	})
	require.NoError(t, err)
	return tenants
}

func requestContext(acc account.Account) *tenancy.RequestContext {
	return &tenancy.RequestContext{Account: acc.Membership(), TenantID: acc.TenantID, Role: acc.Role}
}

func TestService_Onboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	prof := identity.Profile{Subject: "idp|1", Email: "ann@test.test", Name: "Ann"}

	acc, err := f.svc.Onboard(ctx, prof)
	require.NoError(t, err)
	assert.True(t, acc.IsBound())
	assert.Equal(t, tenancy.RolePrimaryGuardian, acc.Role)
	assert.False(t, acc.LastLogin.IsZero())

	tenants := f.allTenants(t)
	require.Len(t, tenants, 1)
	assert.Equal(t, acc.TenantID.UUID, tenants[0].ID)
	assert.Equal(t, tenant.StatusTrialing, tenants[0].Status)
	assert.Equal(t, "ann@test.test", tenants[0].ContactEmail)

	// idempotent
	again, err := f.svc.Onboard(ctx, prof)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, again.ID)
	assert.Equal(t, acc.TenantID, again.TenantID)
	assert.Equal(t, acc.Role, again.Role)
	assert.Len(t, f.allTenants(t), 1)
}

func TestService_Onboard_concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	prof := identity.Profile{Subject: "idp|retry", Email: "bob@test.test", Name: "Bob"}

	const n = 16
	results := make([]account.Account, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Onboard(ctx, prof)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
		assert.Equal(t, results[0].TenantID, results[i].TenantID)
	}
	assert.Len(t, f.allTenants(t), 1)
}

// gatedTenants holds CreateTenant until released.
type gatedTenants struct {
	tenant.Repository
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTenants) CreateTenant(ctx context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	close(g.entered)
	<-g.release
	return g.Repository.CreateTenant(ctx, t, exec...)
}

func TestService_Onboard_leaderGoesAway(t *testing.T) {
	f := newFixture()
	gate := &gatedTenants{Repository: f.tenants, entered: make(chan struct{}), release: make(chan struct{})}
	svc := account.NewService(f.repo, gate, f.uow)
	prof := identity.Profile{Subject: "idp|flaky", Email: "dee@test.test", Name: "Dee"}

	// the first sign-in starts onboarding, then its client disconnects
	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Onboard(leaderCtx, prof)
		leaderErr <- err
	}()
	<-gate.entered
	cancel()
	assert.Equal(t, context.Canceled, errors.Cause(<-leaderErr))

	// its retry shares the binding still in flight and gets the account bound
	retried := make(chan account.Account, 1)
	retryErr := make(chan error, 1)
	go func() {
		acc, err := svc.Onboard(context.Background(), prof)
		retried <- acc
		retryErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	require.NoError(t, <-retryErr)
	acc := <-retried
	assert.True(t, acc.IsBound())
	assert.Equal(t, tenancy.RolePrimaryGuardian, acc.Role)

	tenants := f.allTenants(t)
	require.Len(t, tenants, 1)
	assert.Equal(t, acc.TenantID.UUID, tenants[0].ID)
}

func TestService_Onboard_deactivated(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	prof := identity.Profile{Subject: "idp|2", Email: "cy@test.test", Name: "Cy"}

	acc, err := f.svc.Onboard(ctx, prof)
	require.NoError(t, err)
	_, err = f.repo.SetActive(ctx, acc.ID, false)
	require.NoError(t, err)

	_, err = f.svc.Onboard(ctx, prof)
	assert.True(t, tenancy.IsForbidden(err))
}

func TestService_Onboard_resumesOrphan(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// an account created by an onboarding interrupted before the bind
	acc, err := f.repo.CreateAccount(ctx, account.Account{Subject: "idp|3", Email: "di@test.test", Name: "Di", IsActive: true})
	require.NoError(t, err)
	assert.False(t, acc.IsBound())

	bound, err := f.svc.Onboard(ctx, identity.Profile{Subject: "idp|3", Email: "di@test.test", Name: "Di"})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, bound.ID)
	assert.True(t, bound.IsBound())
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.Resolve(ctx, uuid.New())
	assert.Equal(t, tenancy.ErrNotFound, errors.Cause(err))

	acc, err := f.svc.Onboard(ctx, identity.Profile{Subject: "idp|4", Email: "ed@test.test", Name: "Ed"})
	require.NoError(t, err)
	m, err := f.svc.Resolve(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.Membership(), m)
}

func TestService_ChangeRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	owner, err := f.svc.Onboard(ctx, identity.Profile{Subject: "idp|owner", Email: "o@test.test", Name: "Owner"})
	require.NoError(t, err)
	member, err := f.repo.CreateAccount(ctx, account.Account{Subject: "idp|member", Email: "m@test.test", Name: "Member", IsActive: true})
	require.NoError(t, err)
	member, err = f.repo.BindTenant(ctx, member.ID, owner.TenantID.UUID, tenancy.RoleStudent)
	require.NoError(t, err)
	stranger, err := f.svc.Onboard(ctx, identity.Profile{Subject: "idp|stranger", Email: "s@test.test", Name: "Stranger"})
	require.NoError(t, err)
	support, err := f.svc.GrantPlatformRole(ctx, account.NewPlatformAccount{Subject: "idp|support", Email: "sa@test.test", Name: "Support", Role: "support_admin"})
	require.NoError(t, err)
	root, err := f.svc.GrantPlatformRole(ctx, account.NewPlatformAccount{Subject: "idp|root", Email: "root@test.test", Name: "Root", Role: "super_admin"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		actor   account.Account
		target  uuid.UUID
		role    tenancy.Role
		wantErr func(error) bool
	}{
		{name: "same tenant", actor: owner, target: member.ID, role: tenancy.RoleGuardian},
		{name: "own role", actor: owner, target: owner.ID, role: tenancy.RoleGuardian, wantErr: isValidation},
		{name: "platform role", actor: owner, target: member.ID, role: tenancy.RoleSuperAdmin, wantErr: isValidation},
		{name: "other tenant", actor: stranger, target: member.ID, role: tenancy.RoleGuardian, wantErr: is(account.ErrNotFound)},
		{name: "unknown account", actor: owner, target: uuid.New(), role: tenancy.RoleGuardian, wantErr: is(account.ErrNotFound)},
		{name: "support admin has no storage bypass", actor: support, target: member.ID, role: tenancy.RoleGuardian, wantErr: is(account.ErrNotFound)},
		{name: "super admin anywhere", actor: root, target: member.ID, role: tenancy.RolePrimaryGuardian},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := f.svc.ChangeRole(ctx, requestContext(tt.actor), tt.target, tt.role)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, acc.Role)
		})
	}
}

func TestService_DeactivateReactivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	owner, err := f.svc.Onboard(ctx, identity.Profile{Subject: "idp|o", Email: "o@test.test", Name: "O"})
	require.NoError(t, err)
	kid, err := f.repo.CreateAccount(ctx, account.Account{Subject: "idp|k", Email: "k@test.test", Name: "K", IsActive: true})
	require.NoError(t, err)
	_, err = f.repo.BindTenant(ctx, kid.ID, owner.TenantID.UUID, tenancy.RoleStudent)
	require.NoError(t, err)

	kid, err = f.svc.Deactivate(ctx, requestContext(owner), kid.ID)
	require.NoError(t, err)
	assert.False(t, kid.IsActive)

	m, err := f.svc.Resolve(ctx, kid.ID)
	require.NoError(t, err)
	assert.False(t, m.IsActive)

	kid, err = f.svc.Reactivate(ctx, kid.ID)
	require.NoError(t, err)
	assert.True(t, kid.IsActive)
}

func TestService_ListMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a, err := f.svc.Onboard(ctx, identity.Profile{Subject: "idp|a", Email: "a@test.test", Name: "A"})
	require.NoError(t, err)
	_, err = f.svc.Onboard(ctx, identity.Profile{Subject: "idp|b", Email: "b@test.test", Name: "B"})
	require.NoError(t, err)

	members, err := f.svc.ListMembers(ctx, requestContext(a), nil)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, a.ID, members[0].ID)

	members, err = f.svc.ListMembers(ctx, &tenancy.RequestContext{Role: tenancy.RoleSupportAdmin}, nil)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestService_GrantPlatformRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.GrantPlatformRole(ctx, account.NewPlatformAccount{Subject: "idp|x", Email: "x@test.test", Role: "guardian"})
	assert.True(t, isValidation(err))

	acc, err := f.svc.GrantPlatformRole(ctx, account.NewPlatformAccount{Subject: "idp|x", Email: "x@test.test", Role: "super_admin"})
	require.NoError(t, err)
	assert.Equal(t, tenancy.RoleSuperAdmin, acc.Role)
	assert.False(t, acc.TenantID.Valid)
	assert.True(t, acc.IsBound())

	// onboarding a platform account creates no tenant
	_, err = f.svc.Onboard(ctx, identity.Profile{Subject: "idp|x", Email: "x@test.test"})
	require.NoError(t, err)
	assert.Empty(t, f.allTenants(t))
}

func isValidation(err error) bool {
	_, ok := errors.Cause(err).(*core.ValidationError)
	return ok
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Cause(err) == target }
}
