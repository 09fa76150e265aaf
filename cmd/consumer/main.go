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
	"github.com/segmentio/kafka-go"

	"example.com/matchday/internal/config"
	"example.com/matchday/internal/consumer"
	"example.com/matchday/internal/logging"
	"example.com/matchday/internal/supervisor"
	httptransport "example.com/matchday/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggingConfig())
	if cfg.UsesMemoryStore() {
		logging.Fatal().Msg("the notification consumer requires postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.ConsumerGroup,
		GroupTopics:     cfg.Kafka.Topics,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	tree := supervisor.NewTree("matchday-consumer", supervisor.TreeConfig{ShutdownTimeout: cfg.HTTP.ShutdownTimeout})
	tree.AddBackgroundService(consumer.NewProcessor(reader, consumer.NewNotificationHandler(pool)))

	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Method(http.MethodGet, "/metrics", promhttp.Handler())
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTP.Address,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  time.Minute,
	}, mux)
	tree.AddAPIService(httptransport.NewService(server, cfg.HTTP.ShutdownTimeout))

	logging.Info().
		Strs("topics", cfg.Kafka.Topics).
		Str("group", cfg.Kafka.ConsumerGroup).
		Msg("notification consumer starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor stopped unexpectedly")
	}
	logging.Info().Msg("notification consumer stopped")
}
