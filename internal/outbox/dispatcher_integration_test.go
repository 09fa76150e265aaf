//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/matchday/internal/events"
	"example.com/matchday/internal/persistence/postgres"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	sessionID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, sessionID, events.TypeParticipantJoined))

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "roster_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)
	record := producer.writes[0].messages[0]
	require.Equal(t, sessionID, string(record.Key))
	require.Equal(t, events.TypeParticipantJoined, header(record, HeaderEventType))

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	seedOutbox(t, ctx, pool, uuid.NewString(), events.TypeParticipantLeft)

	producer := &stubProducer{err: errors.New("kafka unavailable")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 1}, 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("roster_events"))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("roster_events")), 0.0001)

	var reason, partitionKey string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason, partition_key FROM outbox_dlq`).Scan(&reason, &partitionKey))
	require.Contains(t, reason, "kafka unavailable")
	require.NotEmpty(t, partitionKey)

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, pending)
}

func TestDispatcherDefersBatchWhileBreakerOpen(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	seedOutbox(t, ctx, pool, uuid.NewString(), events.TypeSessionCancelled)

	upstream := &stubProducer{err: errors.New("broker down")}
	producer := NewBreakerProducer(upstream, BreakerSettings{FailureThreshold: 1, OpenTimeout: time.Hour})
	require.Error(t, producer.WriteMessages(ctx, "session_events"))
	require.Equal(t, "open", producer.State())

	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 3}, 10*time.Millisecond, 5)
	beforeDeferred := testutil.ToFloat64(deferredCounter)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.InDelta(t, beforeDeferred+1, testutil.ToFloat64(deferredCounter), 0.0001)

	var pending, dlq int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlq))
	require.Equal(t, 1, pending)
	require.Zero(t, dlq)
}

func TestDLQManagerRequeuesAndQuarantines(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	seedOutbox(t, ctx, pool, uuid.NewString(), events.TypeParticipantPromoted)
	failing := NewDispatcher(pool, &stubProducer{err: errors.New("upstream kafka unavailable")}, &stubRegistry{id: 100}, 5*time.Millisecond, 10)
	require.NoError(t, failing.processBatch(ctx))

	manager := NewDLQManager(pool, 1, time.Second)
	replayed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Zero(t, dlqCount)

	producer := &stubProducer{}
	require.NoError(t, NewDispatcher(pool, producer, &stubRegistry{id: 100}, 5*time.Millisecond, 10).processBatch(ctx))
	require.Len(t, producer.writes, 1)
	require.Equal(t, events.TypeParticipantPromoted, header(producer.writes[0].messages[0], HeaderEventType))

	// An entry that already exhausted its retries is quarantined instead of replayed.
	_, err = pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES (999, $1, 'roster_events', '{}', 'boom', 'match', 'm1', 'roster_events-value', 'm1', 1, NOW())`,
		events.TypeParticipantJoined,
	)
	require.NoError(t, err)
	quarantinedMatches := dlqRosterOutcomes.WithLabelValues(dlqOutcomeQuarantined, "match", events.TypeParticipantJoined)
	before := testutil.ToFloat64(quarantinedMatches)
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
	require.InDelta(t, before+1, testutil.ToFloat64(quarantinedMatches), 0.0001)
	require.Equal(t, float64(1), testutil.ToFloat64(dlqBacklog.WithLabelValues("roster_events", "quarantined")))
	require.Zero(t, testutil.ToFloat64(dlqBacklog.WithLabelValues("roster_events", "pending")))
	require.Zero(t, testutil.ToFloat64(dlqBacklog.WithLabelValues("session_events", "pending")))
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	return metric.GetHistogram().GetSampleCount()
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("matchday"),
		postgrescontainer.WithUsername("matchday"),
		postgrescontainer.WithPassword("matchday"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, aggregateID, eventType string) int64 {
	t.Helper()

	topic, aggregateType := "roster_events", "activity_session"
	if eventType == events.TypeSessionCancelled {
		topic = "session_events"
	}
	payload, err := json.Marshal(map[string]any{
		"type":         eventType,
		"aggregate_id": aggregateID,
		"occurred_at":  time.Now().UTC(),
	})
	require.NoError(t, err)

	var eventID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         RETURNING event_id`,
		aggregateType, aggregateID, eventType, topic, topic+"-value", aggregateID, payload,
	).Scan(&eventID)
	require.NoError(t, err)
	return eventID
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
