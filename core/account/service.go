package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/identity"
	"github.com/trezcool/homeroom/core/tenancy"
	"github.com/trezcool/homeroom/core/tenant"
)

var (
	// errors
	ErrNotFound      = errors.New("account not found")
	ErrSubjectExists = errors.New("an account with this subject already exists")
	ErrOwnAccount    = errors.New("cannot change your own account")

	defaultTrialPeriod = 30 * 24 * time.Hour
	bindTimeout        = 10 * time.Second // onboarding transaction, detached from the request
	nowFunc            = time.Now
)

type (
	Repository interface {
		GetAccountByID(ctx context.Context, id uuid.UUID, exec ...core.DBExecutor) (Account, error)
		GetAccountBySubject(ctx context.Context, subject string, exec ...core.DBExecutor) (Account, error)
		// CreateAccount returns ErrSubjectExists when the subject is taken.
		CreateAccount(ctx context.Context, acc Account, exec ...core.DBExecutor) (Account, error)
		// LockAccount reads the account with a row lock held until exec's transaction ends.
		LockAccount(ctx context.Context, id uuid.UUID, exec core.DBExecutor) (Account, error)
		// BindTenant sets tenant & role of an unbound account. Bound accounts are left untouched.
		BindTenant(ctx context.Context, id, tenantID uuid.UUID, role tenancy.Role, exec ...core.DBExecutor) (Account, error)
		UpdateRole(ctx context.Context, id uuid.UUID, role tenancy.Role, exec ...core.DBExecutor) (Account, error)
		SetActive(ctx context.Context, id uuid.UUID, active bool, exec ...core.DBExecutor) (Account, error)
		SetLastLogin(ctx context.Context, id uuid.UUID, exec ...core.DBExecutor) (Account, error)
		QueryAccountsByTenant(ctx context.Context, tenantID uuid.UUID, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Account, error)
	}

	Service struct {
		repo        Repository
		tenants     tenant.Repository
		uow         core.UnitOfWork
		onboarding  singleflight.Group
		trialPeriod time.Duration
	}
)

var _ tenancy.Directory = (*Service)(nil) // interface compliance check

func NewService(repo Repository, tenants tenant.Repository, uow core.UnitOfWork) *Service {
	return &Service{
		repo:        repo,
		tenants:     tenants,
		uow:         uow,
		trialPeriod: defaultTrialPeriod,
	}
}

func (svc *Service) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

func (svc *Service) GetBySubject(ctx context.Context, subject string) (Account, error) {
	return svc.repo.GetAccountBySubject(ctx, core.CleanString(subject))
}

// Resolve re-reads the account: the authorization pipeline's source of truth.
func (svc *Service) Resolve(ctx context.Context, id uuid.UUID) (tenancy.Membership, error) {
	acc, err := svc.repo.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return tenancy.Membership{}, tenancy.ErrNotFound
		}
		return tenancy.Membership{}, errors.Wrap(err, "getting account by ID")
	}
	return acc.Membership(), nil
}

// Onboard finds or creates the account of prof and, the first time only, creates its tenant and binds
// the account to it as primary_guardian. Concurrent calls for one account create a single tenant.
func (svc *Service) Onboard(ctx context.Context, prof identity.Profile) (Account, error) {
	acc, err := svc.findOrCreate(ctx, prof)
	if err != nil {
		return Account{}, err
	}
	if !acc.IsActive {
		return Account{}, tenancy.Forbidden(tenancy.ReasonAccountDeactivated)
	}

	if !acc.IsBound() {
		// the binding outlives the caller that started it: callers sharing it only stop waiting
		ch := svc.onboarding.DoChan(acc.ID.String(), func() (interface{}, error) {
			bindCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bindTimeout)
			defer cancel()
			return svc.bind(bindCtx, acc)
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				return Account{}, errors.Wrap(res.Err, "binding account to a new tenant")
			}
			acc = res.Val.(Account)
		case <-ctx.Done():
			return Account{}, errors.Wrap(ctx.Err(), "binding account to a new tenant")
		}
	}

	acc, err = svc.repo.SetLastLogin(ctx, acc.ID)
	return acc, errors.Wrap(err, "setting lastLogin")
}

func (svc *Service) findOrCreate(ctx context.Context, prof identity.Profile) (Account, error) {
	acc, err := svc.repo.GetAccountBySubject(ctx, prof.Subject)
	if err == nil {
		return acc, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Account{}, errors.Wrap(err, "getting account by subject")
	}

	now := nowFunc().UTC()
	acc, err = svc.repo.CreateAccount(ctx, Account{
		Subject:   prof.Subject,
		Email:     prof.Email,
		Name:      prof.Name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Cause(err) == ErrSubjectExists {
		// lost a race against another first sign-in
		acc, err = svc.repo.GetAccountBySubject(ctx, prof.Subject)
	}
	return acc, errors.Wrap(err, "creating account")
}

// bind runs the unbound -> bound transition in one transaction, under the account row lock.
// The ambient tenant is the tenant being created so that its insert passes the tenants policy.
func (svc *Service) bind(ctx context.Context, acc Account) (Account, error) {
	tenantID := uuid.New()
	var bound Account

	err := svc.uow.Run(ctx, tenancy.NewAmbient(tenantID, tenancy.RolePrimaryGuardian), func(ctx context.Context, exec core.DBExecutor) error {
		locked, err := svc.repo.LockAccount(ctx, acc.ID, exec)
		if err != nil {
			return errors.Wrap(err, "locking account")
		}
		if locked.IsBound() {
			bound = locked
			return nil
		}

		now := nowFunc().UTC()
		_, err = svc.tenants.CreateTenant(ctx, tenant.Tenant{
			ID:           tenantID,
			Name:         locked.Name,
			ContactEmail: locked.Email,
			Status:       tenant.StatusTrialing,
			TrialEndsAt:  null.TimeFrom(now.Add(svc.trialPeriod)),
			CreatedAt:    now,
			UpdatedAt:    now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating tenant")
		}

		bound, err = svc.repo.BindTenant(ctx, acc.ID, tenantID, tenancy.RolePrimaryGuardian, exec)
		return errors.Wrap(err, "binding tenant")
	})
	return bound, err
}

// ListMembers lists the accounts of the request's tenant.
func (svc *Service) ListMembers(ctx context.Context, rc *tenancy.RequestContext, ordering []core.DBOrdering) ([]Account, error) {
	if !rc.TenantID.Valid {
		return []Account{}, nil
	}
	accounts, err := svc.repo.QueryAccountsByTenant(ctx, rc.TenantID.UUID, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying accounts by tenant")
	}

	amb := rc.Ambient()
	members := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if acc.TenantID.Valid && tenancy.HasTenantAccess(amb, acc.TenantID.UUID) {
			members = append(members, acc)
		}
	}
	return members, nil
}

// target loads the account rc may manage: one in a tenant rc has access to, never rc's own.
// Accounts out of reach are reported as not found.
func (svc *Service) target(ctx context.Context, rc *tenancy.RequestContext, id uuid.UUID) (Account, error) {
	if id == rc.Account.AccountID {
		return Account{}, core.NewValidationError(ErrOwnAccount)
	}
	acc, err := svc.repo.GetAccountByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if !acc.TenantID.Valid || !tenancy.HasTenantAccess(rc.Ambient(), acc.TenantID.UUID) {
		return Account{}, ErrNotFound
	}
	if acc.Role.IsPlatform() && rc.Role != tenancy.RoleSuperAdmin {
		return Account{}, tenancy.Forbidden("requires one of: " + tenancy.RoleSuperAdmin.String())
	}
	return acc, nil
}

// ChangeRole assigns a tenant role to another member of the request's tenant.
func (svc *Service) ChangeRole(ctx context.Context, rc *tenancy.RequestContext, id uuid.UUID, role tenancy.Role) (Account, error) {
	if !role.Valid() || role.IsPlatform() {
		return Account{}, core.NewFieldError("role", tenantRoleText)
	}
	if _, err := svc.target(ctx, rc, id); err != nil {
		return Account{}, err
	}
	return svc.repo.UpdateRole(ctx, id, role)
}

func (svc *Service) Deactivate(ctx context.Context, rc *tenancy.RequestContext, id uuid.UUID) (Account, error) {
	if _, err := svc.target(ctx, rc, id); err != nil {
		return Account{}, err
	}
	return svc.repo.SetActive(ctx, id, false)
}

// Platform operations: run from the admin CLI, outside of any request.

func (svc *Service) Reactivate(ctx context.Context, id uuid.UUID) (Account, error) {
	return svc.repo.SetActive(ctx, id, true)
}

// Suspend deactivates any account, platform accounts included. Its sessions stop working on
// their next request.
func (svc *Service) Suspend(ctx context.Context, id uuid.UUID) (Account, error) {
	return svc.repo.SetActive(ctx, id, false)
}

// SetRole sets any role, platform roles included, on an account.
func (svc *Service) SetRole(ctx context.Context, id uuid.UUID, role tenancy.Role) (Account, error) {
	if !role.Valid() {
		return Account{}, core.NewFieldError("role", appRoleText)
	}
	return svc.repo.UpdateRole(ctx, id, role)
}

// GrantPlatformRole finds or creates the account of na and gives it a platform role.
func (svc *Service) GrantPlatformRole(ctx context.Context, na NewPlatformAccount) (Account, error) {
	role, ok := tenancy.ParseRole(na.Role)
	if !ok || !role.IsPlatform() {
		return Account{}, core.NewFieldError("role", platformRoleText)
	}
	acc, err := svc.findOrCreate(ctx, identity.Profile{Subject: na.Subject, Email: na.Email, Name: na.Name})
	if err != nil {
		return Account{}, err
	}
	acc, err = svc.repo.UpdateRole(ctx, acc.ID, role)
	return acc, errors.Wrap(err, "updating role")
}
