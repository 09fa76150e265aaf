package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/matchday/internal/events"
)

func TestBreakerProducerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	next := &stubProducer{err: errors.New("broker down")}
	producer := NewBreakerProducer(next, BreakerSettings{FailureThreshold: 2, OpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		err := producer.WriteMessages(ctx, "roster_events", kafka.Message{})
		require.EqualError(t, err, "broker down")
	}
	require.Equal(t, "open", producer.State())

	next.setErr(nil)
	err := producer.WriteMessages(ctx, "roster_events", kafka.Message{})
	require.ErrorIs(t, err, ErrProducerUnavailable)
	require.Empty(t, next.writes)
}

func TestBreakerProducerPassesThroughWhenClosed(t *testing.T) {
	next := &stubProducer{}
	producer := NewBreakerProducer(next, BreakerSettings{})

	require.NoError(t, producer.WriteMessages(context.Background(), "session_events", kafka.Message{Key: []byte("s1")}))
	require.Equal(t, "closed", producer.State())
	require.Len(t, next.writes, 1)
	require.Equal(t, "session_events", next.writes[0].topic)
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(7, []byte(`{"a":1}`))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(7), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestEncodeSetsHeadersAndCachesSchemaID(t *testing.T) {
	registry := &stubRegistry{id: 11}
	d := &Dispatcher{registry: registry}
	msg := Message{
		EventID:       1,
		AggregateType: "activity_session",
		AggregateID:   "s1",
		EventType:     events.TypeParticipantJoined,
		Topic:         "roster_events",
		SchemaSubject: "roster_events-value",
		PartitionKey:  "s1",
		Payload:       []byte(`{}`),
	}

	for i := 0; i < 3; i++ {
		record, err := d.encode(context.Background(), msg)
		require.NoError(t, err)
		require.Equal(t, "s1", string(record.Key))
		require.Equal(t, events.TypeParticipantJoined, header(record, HeaderEventType))
		require.Equal(t, "roster_events-value", header(record, HeaderSchemaSubject))
		require.Equal(t, "activity_session", header(record, HeaderAggregateType))
	}
	require.Equal(t, 1, registry.calls)

	msg.EventType = "unknown.type"
	_, err := d.encode(context.Background(), msg)
	require.Error(t, err)
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var paths []string
	var schemaType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req struct {
			SchemaType string `json:"schemaType"`
		}
		_ = json.Unmarshal(body, &req)
		schemaType = req.SchemaType

		if r.URL.Path == "/subjects/roster_events-value" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":40403,"message":"Schema not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":21}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), "roster_events-value", participantChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 21, id)
	require.Equal(t, []string{"/subjects/roster_events-value", "/subjects/roster_events-value/versions"}, paths)
	require.Equal(t, "JSON", schemaType)
}

func TestSchemaRegistryReusesKnownSchema(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/subjects/session_events-value", r.URL.Path)
		_, _ = w.Write([]byte(`{"subject":"session_events-value","id":5,"version":3}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "session_events-value", sessionCancelledSchema)
	require.NoError(t, err)
	require.Equal(t, 5, id)
	require.Equal(t, 1, calls)
}

func TestSchemaRegistryServerErrorIsNotRegistered(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "backend store unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "roster_events-value", participantChangedSchema)
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, http.StatusInternalServerError, regErr.Status)
	require.Equal(t, "roster_events-value", regErr.Subject)
	require.Equal(t, "backend store unavailable", regErr.Body)
	require.Equal(t, 1, calls)
}

func TestRegisterSubjectsSeedsSchemaCache(t *testing.T) {
	registry := &stubRegistry{id: 9}
	d := NewDispatcher(nil, &stubProducer{}, registry, time.Second, 10)

	d.registerSubjects(context.Background())
	require.Equal(t, []string{"roster_events-value", "session_events-value"}, registry.subjects)

	for _, eventType := range []string{events.TypeParticipantPromoted, events.TypeSessionCancelled} {
		record, err := d.encode(context.Background(), Message{EventType: eventType, PartitionKey: "m1", Payload: []byte(`{}`)})
		require.NoError(t, err)
		require.Equal(t, uint32(9), binary.BigEndian.Uint32(record.Value[1:5]))
		require.Equal(t, schemaCatalog[eventType].Subject, header(record, HeaderSchemaSubject))
	}
	require.Equal(t, 2, registry.calls)
}

func TestRegisterSubjectsToleratesRegistryOutage(t *testing.T) {
	registry := &stubRegistry{err: errors.New("connection refused")}
	d := NewDispatcher(nil, &stubProducer{}, registry, time.Second, 10)

	d.registerSubjects(context.Background())
	require.Equal(t, 2, registry.calls)

	_, err := d.encode(context.Background(), Message{EventType: events.TypeParticipantJoined, SchemaSubject: "roster_events-value"})
	require.EqualError(t, err, "connection refused")
	require.Equal(t, 3, registry.calls)
}

func TestRosterLabel(t *testing.T) {
	require.Equal(t, "match", rosterLabel("match"))
	require.Equal(t, "session", rosterLabel("activity_session"))
	require.Equal(t, "other", rosterLabel("activity"))
}

func TestRecordDLQOutcomeLabelsRosterKind(t *testing.T) {
	entry := dlqEntry{AggregateType: "match", EventType: events.TypeParticipantLeft, Topic: "roster_events"}
	counter := dlqRosterOutcomes.WithLabelValues(dlqOutcomeRetried, "match", events.TypeParticipantLeft)
	before := testutil.ToFloat64(counter)

	recordDLQOutcome(dlqOutcomeRetried, entry)
	recordDLQOutcome(dlqOutcomeRetried, entry)

	require.InDelta(t, before+2, testutil.ToFloat64(counter), 0.0001)
	require.Zero(t, testutil.ToFloat64(dlqRosterOutcomes.WithLabelValues(dlqOutcomeRetried, "session", events.TypeParticipantLeft)))
}
