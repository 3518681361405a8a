package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/tenancy"
	"github.com/trezcool/homeroom/storage/database"
)

const accountColumns = "id, subject, email, name, tenant_id, role, is_active, created_at, updated_at, last_login"

var accountOrderings = map[string]string{
	"name":       "name",
	"email":      "email",
	"role":       "role",
	"created_at": "created_at",
	"last_login": "last_login",
}

type accountRow struct {
	ID        string      `boil:"id"`
	Subject   string      `boil:"subject"`
	Email     string      `boil:"email"`
	Name      string      `boil:"name"`
	TenantID  null.String `boil:"tenant_id"`
	Role      null.String `boil:"role"`
	IsActive  bool        `boil:"is_active"`
	CreatedAt time.Time   `boil:"created_at"`
	UpdatedAt time.Time   `boil:"updated_at"`
	LastLogin null.Time   `boil:"last_login"`
}

type accountRepository struct {
	exec core.DBExecutor
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(exec core.DBExecutor) *accountRepository {
	return &accountRepository{exec: exec}
}

func (repo accountRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo accountRepository) unboil(row *accountRow) (account.Account, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "parsing account ID")
	}
	acc := account.Account{
		ID:        id,
		Subject:   row.Subject,
		Email:     row.Email,
		Name:      row.Name,
		Role:      tenancy.Role(row.Role.String),
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		LastLogin: row.LastLogin.Time.UTC(),
	}
	if row.TenantID.Valid {
		tid, err := uuid.Parse(row.TenantID.String)
		if err != nil {
			return account.Account{}, errors.Wrap(err, "parsing tenant ID")
		}
		acc.TenantID = uuid.NullUUID{UUID: tid, Valid: true}
	}
	return acc, nil
}

// trapNoRowsErr maps psql "no rows" err to account.ErrNotFound
func (repo accountRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return account.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo accountRepository) one(ctx context.Context, exec core.DBExecutor, msg, q string, args ...interface{}) (account.Account, error) {
	var row accountRow
	if err := queries.Raw(q, args...).Bind(ctx, exec, &row); err != nil {
		return account.Account{}, repo.trapNoRowsErr(err, msg)
	}
	return repo.unboil(&row)
}

func (repo accountRepository) GetAccountByID(ctx context.Context, id uuid.UUID, exec ...core.DBExecutor) (account.Account, error) {
	return repo.one(ctx, repo.getExec(exec), "getting account by ID",
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
}

func (repo accountRepository) GetAccountBySubject(ctx context.Context, subject string, exec ...core.DBExecutor) (account.Account, error) {
	return repo.one(ctx, repo.getExec(exec), "getting account by subject",
		"SELECT "+accountColumns+" FROM accounts WHERE subject = $1", subject)
}

func (repo accountRepository) CreateAccount(ctx context.Context, acc account.Account, exec ...core.DBExecutor) (account.Account, error) {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	var role null.String
	if acc.Role != tenancy.RoleNone {
		role = null.StringFrom(string(acc.Role))
	}

	created, err := repo.one(ctx, repo.getExec(exec), "inserting account",
		`INSERT INTO accounts (id, subject, email, name, tenant_id, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+accountColumns,
		acc.ID, acc.Subject, acc.Email, acc.Name, acc.TenantID, role, acc.IsActive,
		acc.CreatedAt.UTC(), acc.UpdatedAt.UTC(),
	)
	if err != nil && database.IsUniqueViolation(err) {
		return account.Account{}, account.ErrSubjectExists
	}
	return created, err
}

func (repo accountRepository) LockAccount(ctx context.Context, id uuid.UUID, exec core.DBExecutor) (account.Account, error) {
	return repo.one(ctx, repo.getExec([]core.DBExecutor{exec}), "locking account",
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id)
}

func (repo accountRepository) BindTenant(ctx context.Context, id, tenantID uuid.UUID, role tenancy.Role, exec ...core.DBExecutor) (account.Account, error) {
	ex := repo.getExec(exec)
	acc, err := repo.one(ctx, ex, "binding tenant",
		`UPDATE accounts SET tenant_id = $2, role = $3, updated_at = now()
		WHERE id = $1 AND tenant_id IS NULL
		RETURNING `+accountColumns,
		id, tenantID, string(role),
	)
	if errors.Cause(err) == account.ErrNotFound {
		// already bound, or gone
		return repo.GetAccountByID(ctx, id, ex)
	}
	return acc, err
}

func (repo accountRepository) UpdateRole(ctx context.Context, id uuid.UUID, role tenancy.Role, exec ...core.DBExecutor) (account.Account, error) {
	return repo.one(ctx, repo.getExec(exec), "updating role",
		"UPDATE accounts SET role = $2, updated_at = now() WHERE id = $1 RETURNING "+accountColumns,
		id, string(role))
}

func (repo accountRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, exec ...core.DBExecutor) (account.Account, error) {
	return repo.one(ctx, repo.getExec(exec), "setting is_active",
		"UPDATE accounts SET is_active = $2, updated_at = now() WHERE id = $1 RETURNING "+accountColumns,
		id, active)
}

func (repo accountRepository) SetLastLogin(ctx context.Context, id uuid.UUID, exec ...core.DBExecutor) (account.Account, error) {
	return repo.one(ctx, repo.getExec(exec), "setting last_login",
		"UPDATE accounts SET last_login = now() WHERE id = $1 RETURNING "+accountColumns, id)
}

func (repo accountRepository) QueryAccountsByTenant(ctx context.Context, tenantID uuid.UUID, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]account.Account, error) {
	q := "SELECT " + accountColumns + " FROM accounts WHERE tenant_id = $1" +
		database.OrderBy(ordering, accountOrderings, "created_at")

	var rows []*accountRow
	if err := queries.Raw(q, tenantID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying accounts by tenant")
	}
	accounts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		acc, err := repo.unboil(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}
