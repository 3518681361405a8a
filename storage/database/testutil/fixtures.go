package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/tenancy"
	"github.com/trezcool/homeroom/core/tenant"
	"github.com/trezcool/homeroom/storage/database"
	boiledrepos "github.com/trezcool/homeroom/storage/database/sqlboiler"
)

// CreateTenant inserts a tenant under a super_admin ambient state.
func CreateTenant(t *testing.T, db *sqlx.DB, name string) tenant.Tenant {
	t.Helper()

	now := time.Now().UTC()
	repo := boiledrepos.NewTenantRepository(db)
	session := database.NewSession(db, Config().Database, Logger{T: t})

	var created tenant.Tenant
	err := session.Run(context.Background(), tenancy.PlatformAmbient(tenancy.RoleSuperAdmin),
		func(ctx context.Context, exec core.DBExecutor) error {
			var err error
			created, err = repo.CreateTenant(ctx, tenant.Tenant{
				ID:           uuid.New(),
				Name:         name,
				ContactEmail: "contact@" + name + ".test",
				Status:       tenant.StatusActive,
				CreatedAt:    now,
				UpdatedAt:    now,
			}, exec)
			return err
		})
	if err != nil {
		t.Fatalf("createTenant() failed: %v", err)
	}
	return created
}
