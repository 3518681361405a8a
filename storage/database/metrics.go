package database

import "github.com/prometheus/client_golang/prometheus"

// Unit of work outcomes
const (
	outcomeCommitted  = "committed"
	outcomeRolledBack = "rolled_back"
	outcomeRejected   = "rejected" // invalid ambient state, nothing borrowed
	outcomeFailed     = "failed"   // connection, transaction or ambient state failure
)

var (
	unitsOfWork = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeroom_db_units_of_work_total",
			Help: "Units of work by outcome",
		},
		[]string{"outcome"},
	)

	unitOfWorkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homeroom_db_unit_of_work_duration_seconds",
			Help:    "Unit of work duration, connection borrow to release",
			Buckets: prometheus.DefBuckets,
		},
	)

	ambientClearFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "homeroom_db_ambient_clear_failures_total",
			Help: "Failed resets of the session ambient state",
		},
	)

	discardedConns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "homeroom_db_discarded_connections_total",
			Help: "Connections closed instead of returned to the pool",
		},
	)
)

func init() {
	prometheus.MustRegister(
		unitsOfWork,
		unitOfWorkDuration,
		ambientClearFailures,
		discardedConns,
	)
}
