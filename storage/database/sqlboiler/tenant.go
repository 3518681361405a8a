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
	"github.com/trezcool/homeroom/core/tenant"
	"github.com/trezcool/homeroom/storage/database"
)

const tenantColumns = "id, name, contact_email, status, trial_ends_at, created_at, updated_at"

var tenantOrderings = map[string]string{
	"name":          "name",
	"status":        "status",
	"trial_ends_at": "trial_ends_at",
	"created_at":    "created_at",
}

type tenantRow struct {
	ID           string    `boil:"id"`
	Name         string    `boil:"name"`
	ContactEmail string    `boil:"contact_email"`
	Status       string    `boil:"status"`
	TrialEndsAt  null.Time `boil:"trial_ends_at"`
	CreatedAt    time.Time `boil:"created_at"`
	UpdatedAt    time.Time `boil:"updated_at"`
}

// tenantRepository queries a row-level-secured table: it only ever sees the tenants the
// ambient state of exec gives access to.
type tenantRepository struct {
	exec core.DBExecutor
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(exec core.DBExecutor) *tenantRepository {
	return &tenantRepository{exec: exec}
}

func (repo tenantRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo tenantRepository) unboil(row *tenantRow) (tenant.Tenant, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "parsing tenant ID")
	}
	t := tenant.Tenant{
		ID:           id,
		Name:         row.Name,
		ContactEmail: row.ContactEmail,
		Status:       row.Status,
		TrialEndsAt:  row.TrialEndsAt,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if t.TrialEndsAt.Valid {
		t.TrialEndsAt.Time = t.TrialEndsAt.Time.UTC()
	}
	return t, nil
}

func (repo tenantRepository) unboilSlice(rows []*tenantRow) ([]tenant.Tenant, error) {
	tenants := make([]tenant.Tenant, 0, len(rows))
	for _, row := range rows {
		t, err := repo.unboil(row)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

func (repo tenantRepository) one(ctx context.Context, exec core.DBExecutor, msg, q string, args ...interface{}) (tenant.Tenant, error) {
	var row tenantRow
	if err := queries.Raw(q, args...).Bind(ctx, exec, &row); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return tenant.Tenant{}, tenant.ErrNotFound
		}
		return tenant.Tenant{}, errors.Wrap(err, msg)
	}
	return repo.unboil(&row)
}

func (repo tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = tenant.StatusTrialing
	}
	return repo.one(ctx, repo.getExec(exec), "inserting tenant",
		`INSERT INTO tenants (id, name, contact_email, status, trial_ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+tenantColumns,
		t.ID, t.Name, t.ContactEmail, t.Status, t.TrialEndsAt, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
}

func (repo tenantRepository) GetTenantByID(ctx context.Context, id uuid.UUID, exec ...core.DBExecutor) (tenant.Tenant, error) {
	return repo.one(ctx, repo.getExec(exec), "getting tenant by ID",
		"SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id)
}

func (repo tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	return repo.one(ctx, repo.getExec(exec), "updating tenant",
		`UPDATE tenants SET name = $2, contact_email = $3, status = $4, trial_ends_at = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+tenantColumns,
		t.ID, t.Name, t.ContactEmail, t.Status, t.TrialEndsAt, t.UpdatedAt.UTC(),
	)
}

func (repo tenantRepository) QueryTenants(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]tenant.Tenant, error) {
	q := "SELECT " + tenantColumns + " FROM tenants" + database.OrderBy(ordering, tenantOrderings, "created_at")

	var rows []*tenantRow
	if err := queries.Raw(q).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying tenants")
	}
	return repo.unboilSlice(rows)
}

func (repo tenantRepository) QueryOrphanTenants(ctx context.Context, exec ...core.DBExecutor) ([]tenant.Tenant, error) {
	q := `SELECT ` + tenantColumns + ` FROM tenants t
	WHERE NOT EXISTS (SELECT 1 FROM accounts a WHERE a.tenant_id = t.id)
	ORDER BY created_at`

	var rows []*tenantRow
	if err := queries.Raw(q).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying orphan tenants")
	}
	return repo.unboilSlice(rows)
}
