package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/matchday/internal/config"
	"example.com/matchday/internal/logging"
	"example.com/matchday/internal/outbox"
	"example.com/matchday/internal/supervisor"
	httptransport "example.com/matchday/internal/transport/http"
)

// dlqService adapts the manager's polling loop to the supervisor.
type dlqService struct {
	manager   *outbox.DLQManager
	interval  time.Duration
	batchSize int
}

func (s dlqService) Serve(ctx context.Context) error {
	return s.manager.Serve(ctx, s.interval, s.batchSize)
}

func (s dlqService) String() string { return "dlq-manager" }

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggingConfig())
	if cfg.UsesMemoryStore() {
		logging.Fatal().Msg("the dlq manager requires postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	tree := supervisor.NewTree("matchday-dlq", supervisor.TreeConfig{ShutdownTimeout: cfg.HTTP.ShutdownTimeout})
	tree.AddBackgroundService(dlqService{
		manager:   outbox.NewDLQManager(pool, cfg.DLQ.MaxRetries, cfg.DLQ.BaseDelay),
		interval:  cfg.DLQ.PollInterval,
		batchSize: cfg.DLQ.BatchSize,
	})

	mux := chi.NewRouter()
	mux.Method(http.MethodGet, "/metrics", promhttp.Handler())
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTP.Address,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  time.Minute,
	}, mux)
	tree.AddAPIService(httptransport.NewService(server, cfg.HTTP.ShutdownTimeout))

	logging.Info().
		Dur("interval", cfg.DLQ.PollInterval).
		Int("max_retries", cfg.DLQ.MaxRetries).
		Msg("dlq manager starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor stopped unexpectedly")
	}
	logging.Info().Msg("dlq manager stopped")
}
