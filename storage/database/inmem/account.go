package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/tenancy"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) update(id uuid.UUID, fn func(acc *account.Account)) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acc, ok := repo.db.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	fn(acc)
	acc.UpdatedAt = time.Now().UTC()
	return *acc, nil
}

func (repo *accountRepository) GetAccountByID(_ context.Context, id uuid.UUID, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if acc, ok := repo.db.accounts[id]; ok {
		return *acc, nil
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) GetAccountBySubject(_ context.Context, subject string, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, acc := range repo.db.accounts {
		if acc.Subject == subject {
			return *acc, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, a := range repo.db.accounts {
		if a.Subject == acc.Subject {
			return account.Account{}, account.ErrSubjectExists
		}
	}
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	repo.db.accounts[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) LockAccount(ctx context.Context, id uuid.UUID, exec core.DBExecutor) (account.Account, error) {
	return repo.GetAccountByID(ctx, id, exec)
}

func (repo *accountRepository) BindTenant(_ context.Context, id, tenantID uuid.UUID, role tenancy.Role, _ ...core.DBExecutor) (account.Account, error) {
	return repo.update(id, func(acc *account.Account) {
		if acc.TenantID.Valid {
			return
		}
		acc.TenantID = uuid.NullUUID{UUID: tenantID, Valid: true}
		acc.Role = role
	})
}

func (repo *accountRepository) UpdateRole(_ context.Context, id uuid.UUID, role tenancy.Role, _ ...core.DBExecutor) (account.Account, error) {
	return repo.update(id, func(acc *account.Account) { acc.Role = role })
}

func (repo *accountRepository) SetActive(_ context.Context, id uuid.UUID, active bool, _ ...core.DBExecutor) (account.Account, error) {
	return repo.update(id, func(acc *account.Account) { acc.IsActive = active })
}

func (repo *accountRepository) SetLastLogin(_ context.Context, id uuid.UUID, _ ...core.DBExecutor) (account.Account, error) {
	return repo.update(id, func(acc *account.Account) { acc.LastLogin = time.Now().UTC() })
}

func (repo *accountRepository) QueryAccountsByTenant(_ context.Context, tenantID uuid.UUID, _ []core.DBOrdering, _ ...core.DBExecutor) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	accounts := make([]account.Account, 0)
	for _, acc := range repo.db.accounts {
		if acc.TenantID.Valid && acc.TenantID.UUID == tenantID {
			accounts = append(accounts, *acc)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}
