// Package inmemdb is an in-memory storage backend for tests and local experiments.
// Its tables apply the same row policies as the Postgres schema, through tenancy.HasTenantAccess.
package inmemdb

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/records"
	"github.com/trezcool/homeroom/core/tenancy"
	"github.com/trezcool/homeroom/core/tenant"
)

type (
	DB struct {
		mutex sync.RWMutex
		// tx serializes units of work, standing in for transactions and row locks.
		tx sync.Mutex

		accounts map[uuid.UUID]*account.Account
		tenants  map[uuid.UUID]*tenant.Tenant
		students map[uuid.UUID]*records.Student
		courses  map[uuid.UUID]*records.Course
		grades   map[uuid.UUID]*records.Grade
	}

	unitOfWork struct {
		db *DB
	}

	ambientKey struct{}
)

func Open() *DB {
	return &DB{
		accounts: make(map[uuid.UUID]*account.Account),
		tenants:  make(map[uuid.UUID]*tenant.Tenant),
		students: make(map[uuid.UUID]*records.Student),
		courses:  make(map[uuid.UUID]*records.Course),
		grades:   make(map[uuid.UUID]*records.Grade),
	}
}

var _ core.UnitOfWork = (*unitOfWork)(nil)

func NewUnitOfWork(db *DB) core.UnitOfWork {
	return &unitOfWork{db: db}
}

// Run makes amb the ambient state of ctx for the duration of fn.
func (uow *unitOfWork) Run(ctx context.Context, amb tenancy.Ambient, fn func(ctx context.Context, exec core.DBExecutor) error) error {
	if err := amb.Validate(); err != nil {
		return errors.Wrap(err, "setting ambient state")
	}
	uow.db.tx.Lock()
	defer uow.db.tx.Unlock()
	return fn(context.WithValue(ctx, ambientKey{}, amb), nil)
}

// ambient returns the ambient state set by Run. Outside of Run it is the zero Ambient,
// which has access to no tenant.
func ambient(ctx context.Context) tenancy.Ambient {
	amb, _ := ctx.Value(ambientKey{}).(tenancy.Ambient)
	return amb
}

func visible(ctx context.Context, tenantID uuid.UUID) bool {
	return tenancy.HasTenantAccess(ambient(ctx), tenantID)
}

func inScope(scope uuid.NullUUID, tenantID uuid.UUID) bool {
	return !scope.Valid || scope.UUID == tenantID
}

var errPolicyViolation = errors.New("new row violates row-level security policy")
