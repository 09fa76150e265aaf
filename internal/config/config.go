// Package config centralises configuration loading for the matchday binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/logging"
)

// MemoryStoreURL selects the in-process store instead of Postgres.
const MemoryStoreURL = "memory://"

// Config captures runtime configuration shared by the api, consumer and dlqmanager binaries.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Postgres PostgresConfig `koanf:"postgres"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Outbox   OutboxConfig   `koanf:"outbox"`
	DLQ      DLQConfig      `koanf:"dlq"`
	Auth     AuthConfig     `koanf:"auth"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Roster   RosterConfig   `koanf:"roster"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Address           string        `koanf:"address"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// PostgresConfig selects the database.
type PostgresConfig struct {
	URL string `koanf:"url"`
}

// KafkaConfig configures the producer and consumer.
type KafkaConfig struct {
	Brokers           []string `koanf:"brokers"`
	SchemaRegistryURL string   `koanf:"schema_registry_url"`
	ConsumerGroup     string   `koanf:"consumer_group"`
	Topics            []string `koanf:"topics"`
}

// OutboxConfig tunes the dispatcher and its producer circuit breaker.
type OutboxConfig struct {
	Enabled            bool          `koanf:"enabled"`
	PollInterval       time.Duration `koanf:"poll_interval"`
	BatchSize          int           `koanf:"batch_size"`
	BreakerFailures    uint32        `koanf:"breaker_failures"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
}

// DLQConfig tunes dead-letter retries.
type DLQConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"` // Interval between DLQ polling iterations.
	MaxRetries   int           `koanf:"max_retries"`   // Maximum number of DLQ retry attempts before quarantine.
	BaseDelay    time.Duration `koanf:"base_delay"`    // Base delay used for exponential backoff.
	BatchSize    int           `koanf:"batch_size"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`
}

// ScheduleConfig drives the background maintenance loop.
type ScheduleConfig struct {
	Enabled               bool          `koanf:"enabled"`
	Interval              time.Duration `koanf:"interval"`
	WeeksAhead            int           `koanf:"weeks_ahead"`
	CompletionBuffer      time.Duration `koanf:"completion_buffer"`
	EmptySessionRetention time.Duration `koanf:"empty_session_retention"`
	ParticipantRetention  time.Duration `koanf:"participant_retention"`
	Timezone              string        `koanf:"timezone"`
}

// RosterConfig sets the registration cutoff per roster kind.
type RosterConfig struct {
	SessionCutoff time.Duration `koanf:"session_cutoff"`
	MatchCutoff   time.Duration `koanf:"match_cutoff"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Address) == "" {
		errs = append(errs, errors.New("http.address is required"))
	}
	if c.HTTP.RateLimitRequests < 0 {
		errs = append(errs, errors.New("http.rate_limit_requests must not be negative"))
	}
	if c.HTTP.RateLimitRequests > 0 && c.HTTP.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("http.rate_limit_window must be positive"))
	}
	if strings.TrimSpace(c.Postgres.URL) == "" {
		errs = append(errs, errors.New("postgres.url is required"))
	}
	if c.Outbox.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required when the outbox is enabled"))
		}
		if c.Outbox.PollInterval <= 0 || c.Outbox.BatchSize <= 0 {
			errs = append(errs, errors.New("outbox.poll_interval and outbox.batch_size must be positive"))
		}
	}
	if c.DLQ.PollInterval <= 0 || c.DLQ.BaseDelay <= 0 || c.DLQ.MaxRetries <= 0 {
		errs = append(errs, errors.New("dlq intervals and max_retries must be positive"))
	}
	if c.Schedule.WeeksAhead < domain.MinHorizonWeeks || c.Schedule.WeeksAhead > domain.MaxHorizonWeeks {
		errs = append(errs, fmt.Errorf("schedule.weeks_ahead must be between %d and %d, got %d", domain.MinHorizonWeeks, domain.MaxHorizonWeeks, c.Schedule.WeeksAhead))
	}
	if c.Schedule.Interval <= 0 {
		errs = append(errs, errors.New("schedule.interval must be positive"))
	}
	if c.Schedule.CompletionBuffer < 0 {
		errs = append(errs, errors.New("schedule.completion_buffer must not be negative"))
	}
	if err := c.Retention().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("schedule retention: %w", err))
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}
	if c.Roster.SessionCutoff < 0 || c.Roster.MatchCutoff < 0 {
		errs = append(errs, errors.New("roster cutoffs must not be negative"))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not a known level", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// UsesMemoryStore reports whether the in-process store was selected.
func (c *Config) UsesMemoryStore() bool {
	return c.Postgres.URL == MemoryStoreURL
}

// Location resolves the scheduling timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Retention converts the schedule settings into a domain retention policy.
func (c *Config) Retention() domain.RetentionPolicy {
	return domain.RetentionPolicy{
		EmptySessionRetention: c.Schedule.EmptySessionRetention,
		ParticipantRetention:  c.Schedule.ParticipantRetention,
	}
}

// ServiceOptions builds the domain options implied by the configuration.
func (c *Config) ServiceOptions() []domain.Option {
	return []domain.Option{
		domain.WithLocation(c.Location()),
		domain.WithPolicy(domain.RosterSession, domain.RosterPolicy{Cutoff: c.Roster.SessionCutoff}),
		domain.WithPolicy(domain.RosterMatch, domain.RosterPolicy{Cutoff: c.Roster.MatchCutoff, TracksFullness: true}),
	}
}

// LoggingConfig converts to the logging package configuration.
func (c LoggingConfig) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, Caller: c.Caller}
}
