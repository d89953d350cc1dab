package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contest-leaderboard/internal/codeforces"
	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/handler"
	"github.com/contest-leaderboard/internal/kafka"
	"github.com/contest-leaderboard/internal/metrics"
	"github.com/contest-leaderboard/internal/postgres"
	"github.com/contest-leaderboard/internal/redis"
	"github.com/contest-leaderboard/internal/service"
	"github.com/contest-leaderboard/internal/telemetry"
	"github.com/contest-leaderboard/internal/websocket"
	"github.com/contest-leaderboard/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("failed to initialize tracing, continuing without it", "error", err)
	}

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	ledger, err := postgres.NewLedger(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()
	logger.Info("connected to PostgreSQL")

	if err := ledger.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Initialize the Redis-backed leaderboard surface
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	board, err := redis.NewBoard(&cfg.Redis, &cfg.Leaderboard, wsHub, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer board.Close()
	logger.Info("connected to Redis")

	judge := codeforces.NewClient(&cfg.Judge, logger)
	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize services
	aggregator := service.NewAggregator()
	selector := service.NewSelector(judge, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	registry := service.NewRegistry(ledger, selector, aggregator, logger)
	publisher := service.NewPublisher(ledger, board, &cfg.Leaderboard, m, logger)
	reconciler := service.NewReconciler(judge, &cfg.Scheduler, m, logger)

	var verifier service.HandleVerifier
	if cfg.Judge.VerifyHandle {
		verifier = judge
	}
	contests := service.NewContestService(registry, publisher, ledger, verifier, logger)

	// Start the leaderboard refresh loop
	refresher := service.NewRefresher(ledger, reconciler, aggregator, publisher, logger)
	scheduler := worker.NewScheduler(ledger, refresher, &cfg.Scheduler, m, logger)
	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for queued contest commands
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, contests, m, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := startConsumer(ctx, kafkaConsumer, cfg.Kafka.CommandTimeout); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			if err := kafkaConsumer.Stop(); err != nil {
				logger.Error("failed to stop Kafka consumer", "error", err)
			}
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	checks := map[string]handler.Pinger{
		"postgres": ledger,
		"redis":    board,
	}
	httpHandler := handler.NewHandler(contests, board, wsHub, promhttp.Handler(), checks, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := scheduler.Stop(); err != nil {
		logger.Error("failed to stop scheduler", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	wsHub.Stop()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}

	logger.Info("server stopped")
}

func startConsumer(ctx context.Context, consumer *kafka.Consumer, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return consumer.Start(ctx)
}
