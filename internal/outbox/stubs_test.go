package outbox

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

func (p *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

func (p *stubProducer) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type stubRegistry struct {
	mu       sync.Mutex
	id       int
	err      error
	calls    int
	subjects []string
}

func (r *stubRegistry) EnsureSchema(_ context.Context, subject, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.subjects = append(r.subjects, subject)
	if r.err != nil {
		return 0, r.err
	}
	return r.id, nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
