package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBQueryDuration records latency of the repository queries that are
	// on the registration hot path.
	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// DBErrors counts failed queries by operation and error class.
	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)
)

// PoolSnapshot is a point-in-time view of connection pool statistics.
type PoolSnapshot struct {
	Total           int32
	Acquired        int32
	Idle            int32
	Max             int32
	AcquireCount    int64
	EmptyAcquires   int64
	CanceledAcquire int64
	AcquireDuration time.Duration
}

// PgxPoolStats reads a PoolSnapshot from a pgx pool.
func PgxPoolStats(pool *pgxpool.Pool) func() PoolSnapshot {
	return func() PoolSnapshot {
		stat := pool.Stat()
		return PoolSnapshot{
			Total:           stat.TotalConns(),
			Acquired:        stat.AcquiredConns(),
			Idle:            stat.IdleConns(),
			Max:             stat.MaxConns(),
			AcquireCount:    stat.AcquireCount(),
			EmptyAcquires:   stat.EmptyAcquireCount(),
			CanceledAcquire: stat.CanceledAcquireCount(),
			AcquireDuration: stat.AcquireDuration(),
		}
	}
}

// DBCollector exports pool statistics at scrape time.
type DBCollector struct {
	stats func() PoolSnapshot

	conns           *prometheus.Desc
	maxConns        *prometheus.Desc
	acquires        *prometheus.Desc
	emptyAcquires   *prometheus.Desc
	canceledAcquire *prometheus.Desc
	acquireSeconds  *prometheus.Desc
}

var _ prometheus.Collector = (*DBCollector)(nil)

// NewDBCollector returns a collector reading from stats on every scrape.
func NewDBCollector(stats func() PoolSnapshot) *DBCollector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "db", n) }
	return &DBCollector{
		stats:           stats,
		conns:           prometheus.NewDesc(name("connections"), "Database connections by state", []string{"state"}, nil),
		maxConns:        prometheus.NewDesc(name("connections_max"), "Maximum number of database connections allowed", nil, nil),
		acquires:        prometheus.NewDesc(name("acquires_total"), "Total number of connection acquires", nil, nil),
		emptyAcquires:   prometheus.NewDesc(name("empty_acquires_total"), "Acquires that waited because the pool was empty", nil, nil),
		canceledAcquire: prometheus.NewDesc(name("canceled_acquires_total"), "Acquires canceled by their context", nil, nil),
		acquireSeconds:  prometheus.NewDesc(name("acquire_seconds_total"), "Total time spent acquiring connections", nil, nil),
	}
}

// RegisterDBCollector exports pool's statistics on Registry.
func RegisterDBCollector(pool *pgxpool.Pool) error {
	return Registry.Register(NewDBCollector(PgxPoolStats(pool)))
}

func (c *DBCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.maxConns
	ch <- c.acquires
	ch <- c.emptyAcquires
	ch <- c.canceledAcquire
	ch <- c.acquireSeconds
}

func (c *DBCollector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		return
	}
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.Total), "total")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.Acquired), "acquired")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.Idle), "idle")
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquires, prometheus.CounterValue, float64(s.EmptyAcquires))
	ch <- prometheus.MustNewConstMetric(c.canceledAcquire, prometheus.CounterValue, float64(s.CanceledAcquire))
	ch <- prometheus.MustNewConstMetric(c.acquireSeconds, prometheus.CounterValue, s.AcquireDuration.Seconds())
}

// RecordQuery observes a query's latency and counts it when it failed.
// pgx.ErrNoRows is an expected outcome and is not counted.
//
//	began := time.Now()
//	defer func() { metrics.RecordQuery("list_events", began, err) }()
func RecordQuery(operation string, began time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(began).Seconds())
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return
	}
	DBErrors.WithLabelValues(operation, classifyDBError(err)).Inc()
}

func classifyDBError(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		return "unique_violation"
	case errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01"):
		return "serialization"
	default:
		return "query_error"
	}
}
