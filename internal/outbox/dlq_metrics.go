package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"example.com/matchday/internal/domain"
)

// Outcomes of a DLQ pass over one entry.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeRetried     = "retried"
	dlqOutcomeQuarantined = "quarantined"
)

var (
	// Replay outcomes split by roster kind so a stuck match feed is not
	// hidden behind healthy session traffic.
	dlqRosterOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchday",
		Subsystem: "dlq",
		Name:      "roster_events_total",
		Help:      "DLQ entries handled, by outcome, roster kind and event type.",
	}, []string{"outcome", "roster", "event_type"})

	dlqBacklog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "matchday",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Entries waiting in the DLQ per topic; quarantined rows are counted separately.",
	}, []string{"topic", "state"})
)

func init() {
	prometheus.MustRegister(dlqRosterOutcomes, dlqBacklog)
}

// rosterLabel maps an outbox aggregate type back to the roster kind it came from.
func rosterLabel(aggregateType string) string {
	switch aggregateType {
	case domain.MatchRef("").AggregateType():
		return string(domain.RosterMatch)
	case domain.SessionRef("").AggregateType():
		return string(domain.RosterSession)
	default:
		return "other"
	}
}

func recordDLQOutcome(outcome string, entry dlqEntry) {
	dlqRosterOutcomes.WithLabelValues(outcome, rosterLabel(entry.AggregateType), entry.EventType).Inc()
}

// refreshBacklog recounts the DLQ. Every catalogued topic is reset first so a
// drained topic reports zero instead of its last value.
func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `SELECT topic, quarantined_at IS NOT NULL, COUNT(*)
                                    FROM outbox_dlq
                                   GROUP BY topic, quarantined_at IS NOT NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()

	counts := make(map[[2]string]float64)
	for _, subject := range rosterSubjects() {
		counts[[2]string{subject.Topic, "pending"}] = 0
		counts[[2]string{subject.Topic, "quarantined"}] = 0
	}
	for rows.Next() {
		var (
			topic       string
			quarantined bool
			n           int64
		)
		if err := rows.Scan(&topic, &quarantined, &n); err != nil {
			return err
		}
		state := "pending"
		if quarantined {
			state = "quarantined"
		}
		counts[[2]string{topic, state}] = float64(n)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for key, n := range counts {
		dlqBacklog.WithLabelValues(key[0], key[1]).Set(n)
	}
	return nil
}
