package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"example.com/matchday/internal/logging"
)

// ErrProducerUnavailable is returned while the producer circuit is open. The
// batch stays in the outbox and is retried on a later poll.
var ErrProducerUnavailable = errors.New("kafka producer unavailable")

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to the given topic, creating a writer if necessary.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer := p.writerForTopic(topic)
	return writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}

// BreakerSettings tunes the producer circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// BreakerProducer trips after consecutive write failures so an unreachable
// cluster is not hammered on every poll.
type BreakerProducer struct {
	next    messageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerProducer wraps next with a circuit breaker.
func NewBreakerProducer(next messageWriter, cfg BreakerSettings) *BreakerProducer {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	log := logging.WithComponent("outbox")
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("producer circuit changed state")
		},
	})
	return &BreakerProducer{next: next, breaker: breaker}
}

// WriteMessages forwards to the wrapped writer unless the circuit is open.
func (p *BreakerProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.next.WriteMessages(ctx, topic, msgs...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrProducerUnavailable
	}
	return err
}

// State reports the breaker state name.
func (p *BreakerProducer) State() string {
	return p.breaker.State().String()
}
