// Package testutil starts a throwaway PostgreSQL server for the row level security tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/storage/database"
)

const (
	image         = "postgres:16-alpine"
	adminUser     = "postgres"
	adminPassword = "postgres"
)

// Logger writes through t.Logf.
type Logger struct {
	T *testing.T
}

var _ core.Logger = (*Logger)(nil)

func (l Logger) log(level, msg string, args []interface{}) {
	l.T.Helper()
	l.T.Logf("%s: %s %v", level, msg, args)
}

func (l Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l Logger) Fatal(msg string, args ...interface{}) {
	l.T.Helper()
	l.T.Fatalf("FATAL: %s %v", msg, args)
}

// Config returns a test configuration pointing at no server yet.
func Config() *core.Config {
	return &core.Config{
		Env:      "TEST",
		TestMode: true,
		Database: core.DatabaseConfig{
			Engine:              database.EnginePostgres,
			Host:                "localhost",
			Port:                "5432",
			Name:                "homeroom_test",
			User:                "homeroom",
			Password:            "homeroom",
			AdminUser:           adminUser,
			AdminPassword:       adminPassword,
			DisableTLS:          true,
			MaxOpenConns:        4,
			MaxIdleConns:        4,
			ConnMaxLifetime:     time.Minute,
			AmbientClearTimeout: 2 * time.Second,
		},
	}
}

// NewPostgres starts a PostgreSQL container, creates the app user & database, runs the migrations
// as the app user and returns a pool of app user connections: row level security applies to them.
// The test is skipped when no container runtime is reachable.
func NewPostgres(t *testing.T, engine ...string) (*sqlx.DB, *core.Config) {
	t.Helper()

	if testing.Short() || os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("skipping PostgreSQL integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := pgmodule.Run(ctx, image,
		pgmodule.WithDatabase("postgres"),
		pgmodule.WithUsername(adminUser),
		pgmodule.WithPassword(adminPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container.Host() failed: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container.MappedPort() failed: %v", err)
	}

	conf := Config()
	conf.Database.Host = host
	conf.Database.Port = port.Port()
	if len(engine) > 0 {
		conf.Database.Engine = engine[0]
	}

	if err = database.CreateIfNotExist(ctx, conf); err != nil {
		t.Fatalf("database.CreateIfNotExist() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Ping(ctx, db); err != nil {
		t.Fatalf("database.Ping() failed: %v", err)
	}
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db, conf
}
