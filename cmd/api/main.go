package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/matchday/internal/api"
	"example.com/matchday/internal/auth"
	"example.com/matchday/internal/config"
	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/logging"
	"example.com/matchday/internal/outbox"
	"example.com/matchday/internal/persistence/memory"
	"example.com/matchday/internal/persistence/postgres"
	"example.com/matchday/internal/scheduler"
	"example.com/matchday/internal/supervisor"
	httptransport "example.com/matchday/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree("matchday-api", supervisor.TreeConfig{ShutdownTimeout: cfg.HTTP.ShutdownTimeout})

	var repo domain.Repository
	if cfg.UsesMemoryStore() {
		logging.Warn().Msg("using in-memory store; data is lost on restart and events are not published")
		repo = memory.NewStore()
	} else {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			logging.Fatal().Err(err).Msg("failed to apply migrations")
		}
		repo = postgres.NewRepository(pool)

		if cfg.Outbox.Enabled {
			producer := outbox.NewKafkaProducer(cfg.Kafka.Brokers)
			defer producer.Close()
			breaker := outbox.NewBreakerProducer(producer, outbox.BreakerSettings{
				FailureThreshold: cfg.Outbox.BreakerFailures,
				OpenTimeout:      cfg.Outbox.BreakerOpenTimeout,
			})
			registry := outbox.NewSchemaRegistryClient(cfg.Kafka.SchemaRegistryURL)
			tree.AddBackgroundService(outbox.NewDispatcher(pool, breaker, registry, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize))
		}
	}

	service := domain.NewService(repo, cfg.ServiceOptions()...)

	if cfg.Schedule.Enabled {
		tree.AddBackgroundService(scheduler.New(service, scheduler.Config{
			Interval:         cfg.Schedule.Interval,
			WeeksAhead:       cfg.Schedule.WeeksAhead,
			CompletionBuffer: cfg.Schedule.CompletionBuffer,
			Retention:        cfg.Retention(),
		}))
	}

	handler := api.NewHandler(service, api.Config{
		Auth:              auth.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer},
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		RateLimitRequests: cfg.HTTP.RateLimitRequests,
		RateLimitWindow:   cfg.HTTP.RateLimitWindow,
		DefaultWeeksAhead: cfg.Schedule.WeeksAhead,
		CompletionBuffer:  cfg.Schedule.CompletionBuffer,
		Retention:         cfg.Retention(),
	})
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTP.Address,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  time.Minute,
	}, handler.Router())
	tree.AddAPIService(httptransport.NewService(server, cfg.HTTP.ShutdownTimeout))

	logging.Info().
		Str("address", cfg.HTTP.Address).
		Bool("memory_store", cfg.UsesMemoryStore()).
		Bool("outbox", cfg.Outbox.Enabled && !cfg.UsesMemoryStore()).
		Bool("scheduler", cfg.Schedule.Enabled).
		Msg("matchday api starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor stopped unexpectedly")
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("services did not stop before the shutdown deadline")
	}
	logging.Info().Msg("matchday api stopped")
}
