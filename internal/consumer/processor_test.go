package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func frame(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"roster_id":"s1"}`)
	msg := kafka.Message{
		Topic:     "roster_events",
		Partition: 0,
		Offset:    10,
		Key:       []byte("s1"),
		Time:      time.Now().UTC(),
		Value:     frame(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("participant.joined")},
			{Key: "aggregate_type", Value: []byte("activity_session")},
			{Key: "schema_subject", Value: []byte("roster_events-value")},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}
	processor := NewProcessor(reader, handler, WithLogger(zerolog.New(zerolog.NewTestWriter(t))))

	before := testutil.ToFloat64(processedCounter.WithLabelValues("roster_events", "participant.joined"))
	err := processor.Serve(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "participant.joined", handler.last.EventType)
	require.Equal(t, "activity_session", handler.last.AggregateType)
	require.Equal(t, "s1", handler.last.Key)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
	require.InDelta(t, before+1, testutil.ToFloat64(processedCounter.WithLabelValues("roster_events", "participant.joined")), 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	msg := kafka.Message{
		Topic:   "session_events",
		Offset:  20,
		Value:   frame(99, []byte(`{}`)),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("session.cancelled")}},
	}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: errors.New("boom")}
	processor := NewProcessor(reader, handler, WithLogger(zerolog.Nop()))

	require.ErrorIs(t, processor.Serve(context.Background()), context.Canceled)
	require.Equal(t, 1, handler.calls)
	require.Zero(t, reader.commitCalls)
}

func TestProcessorCommitsMalformedRecords(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		{Topic: "roster_events", Value: []byte{0, 1}},
		{Topic: "roster_events", Value: frame(1, []byte(`{}`))},
		{Topic: "roster_events", Value: append([]byte{7}, frame(1, nil)[1:]...), Headers: []kafka.Header{{Key: "event_type", Value: []byte("x")}}},
	}}
	handler := &stubHandler{}
	processor := NewProcessor(reader, handler, WithLogger(zerolog.Nop()))

	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("roster_events"))
	require.ErrorIs(t, processor.Serve(context.Background()), context.Canceled)
	require.Zero(t, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
	require.InDelta(t, before+3, testutil.ToFloat64(decodeErrorCounter.WithLabelValues("roster_events")), 0.0001)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
