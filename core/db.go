package core

import (
	"context"
	"database/sql"

	"github.com/trezcool/homeroom/core/tenancy"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	// UnitOfWork runs fn on one borrowed connection, inside one transaction, with the
	// session ambient state (tenant & role) set from amb for the whole of fn.
	// The ambient state is cleared before the connection goes back to the pool.
	UnitOfWork interface {
		Run(ctx context.Context, amb tenancy.Ambient, fn func(ctx context.Context, exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
