package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/tenancy"
)

const (
	setAmbientQuery   = "SELECT set_config('" + tenancy.SettingTenant + "', $1, true), set_config('" + tenancy.SettingRole + "', $2, true)"
	clearAmbientQuery = "SELECT set_config('" + tenancy.SettingTenant + "', '', false), set_config('" + tenancy.SettingRole + "', '', false)"

	defaultClearTimeout = 2 * time.Second

	// consecutive clear failures after which the pool is considered unusable
	maxClearFailures = 3
)

// ErrAmbientNotCleared is returned by a unit of work whose connection could not be reset.
// Its transaction may have committed.
var ErrAmbientNotCleared = errors.New("ambient state not cleared")

// Session propagates the ambient state of a request to the storage engine.
// Each unit of work owns one connection for its whole duration: the ambient state is set
// at the start of its transaction and cleared before the connection is released.
// A connection that could not be cleared is discarded, never returned to the pool.
type Session struct {
	db           *sqlx.DB
	logger       core.Logger
	tracer       trace.Tracer
	clearTimeout time.Duration

	clearFailures atomic.Int32 // consecutive
}

var _ core.UnitOfWork = (*Session)(nil)

func NewSession(db *sqlx.DB, conf core.DatabaseConfig, logger core.Logger) *Session {
	timeout := conf.AmbientClearTimeout
	if timeout <= 0 {
		timeout = defaultClearTimeout
	}
	return &Session{
		db:           db,
		logger:       logger,
		tracer:       otel.Tracer("github.com/trezcool/homeroom/storage/database"),
		clearTimeout: timeout,
	}
}

// Run executes fn in a transaction on a dedicated connection, with amb as the ambient state.
// Order within a unit of work: set ambient state, fn, commit or rollback, clear ambient state.
// The clear step runs on every exit path, cancellation and panics included.
func (s *Session) Run(ctx context.Context, amb tenancy.Ambient, fn func(ctx context.Context, exec core.DBExecutor) error) (err error) {
	if err := amb.Validate(); err != nil {
		unitsOfWork.WithLabelValues(outcomeRejected).Inc()
		return errors.Wrap(err, "setting ambient state")
	}

	ctx, span := s.tracer.Start(ctx, "db.unit_of_work", trace.WithAttributes(
		attribute.String("app.role", amb.RoleSetting()),
		attribute.Bool("app.tenant_bound", amb.TenantID.Valid),
	))
	start := time.Now()
	outcome := outcomeFailed
	defer func() {
		unitsOfWork.WithLabelValues(outcome).Inc()
		unitOfWorkDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return errors.Wrap(err, "borrowing connection")
	}
	defer func() {
		if rErr := s.release(conn); rErr != nil && err == nil {
			err = rErr
		}
	}()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	done := false
	defer func() {
		if !done {
			// fn panicked
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, setAmbientQuery, amb.TenantSetting(), amb.RoleSetting()); err != nil {
		done = true
		_ = tx.Rollback()
		return errors.Wrap(err, "setting ambient state")
	}

	if err = fn(ctx, tx); err != nil {
		done = true
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Warn("rolling back unit of work", errors.Wrap(rbErr, "rolling back"))
		}
		outcome = outcomeRolledBack
		return err
	}

	done = true
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	outcome = outcomeCommitted
	return nil
}

// release clears the ambient state of conn and returns it to the pool, or discards it when
// the state could not be cleared. It uses its own context: a cancelled request must still clear.
// After maxClearFailures consecutive failures it returns a shutdown error.
func (s *Session) release(conn *sqlx.Conn) error {
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), s.clearTimeout)
	defer cancel()

	if _, err := conn.ExecContext(ctx, clearAmbientQuery); err != nil {
		ambientClearFailures.Inc()
		s.logger.Error("clearing ambient state; discarding connection", errors.Wrap(err, "clearing ambient state"))
		discard(conn)

		if n := s.clearFailures.Add(1); n >= maxClearFailures {
			return core.NewShutdownError(fmt.Sprintf("ambient state not cleared on %d consecutive connections", n))
		}
		return errors.WithStack(ErrAmbientNotCleared)
	}
	s.clearFailures.Store(0)
	return nil
}

// discard makes database/sql close the underlying connection instead of pooling it.
func discard(conn *sqlx.Conn) {
	_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	discardedConns.Inc()
}
