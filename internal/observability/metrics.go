package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rosterCommitGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchday",
		Subsystem: "persistence",
		Name:      "last_roster_commit_timestamp_seconds",
		Help:      "Unix timestamp of the most recent roster transaction committed to Postgres.",
	})
	rosterTxDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "matchday",
		Subsystem: "persistence",
		Name:      "roster_tx_duration_seconds",
		Help:      "Time spent holding a roster lock, labeled by roster kind.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"kind"})
	sessionsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchday",
		Subsystem: "scheduler",
		Name:      "sessions_generated_total",
		Help:      "Sessions created by generation runs.",
	})
	generationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchday",
		Subsystem: "scheduler",
		Name:      "generation_failures_total",
		Help:      "Activities whose sessions could not be generated.",
	})
	sweepRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchday",
		Subsystem: "scheduler",
		Name:      "sweep_rows_total",
		Help:      "Rows touched by maintenance sweeps, labeled by sweep.",
	}, []string{"sweep"})
	httpRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "matchday",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency labeled by route pattern, method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)

func init() {
	prometheus.MustRegister(rosterCommitGauge, rosterTxDuration, sessionsGenerated, generationFailures, sweepRows, httpRequests)
}

// RecordRosterCommitted updates the roster watermark gauge.
func RecordRosterCommitted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	rosterCommitGauge.Set(float64(ts.Unix()))
}

// ObserveRosterTx records how long a roster transaction held its lock.
func ObserveRosterTx(kind string, d time.Duration) {
	rosterTxDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordGeneration accounts for one generation run.
func RecordGeneration(created, failures int) {
	sessionsGenerated.Add(float64(created))
	generationFailures.Add(float64(failures))
}

// RecordSweep adds n rows to the named sweep counter.
func RecordSweep(sweep string, n int) {
	if n <= 0 {
		return
	}
	sweepRows.WithLabelValues(sweep).Add(float64(n))
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
