// TurboWrap orchestrator server: HTTP API, task queue workers, and the
// dual-LLM review/fix loops behind them.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/turbowrap/turbowrap/pkg/api"
	"github.com/turbowrap/turbowrap/pkg/artifact"
	"github.com/turbowrap/turbowrap/pkg/checkpoint"
	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/fix"
	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/loop"
	"github.com/turbowrap/turbowrap/pkg/metrics"
	"github.com/turbowrap/turbowrap/pkg/queue"
	"github.com/turbowrap/turbowrap/pkg/review"
	"github.com/turbowrap/turbowrap/pkg/service"
	"github.com/turbowrap/turbowrap/pkg/store"
	"github.com/turbowrap/turbowrap/pkg/store/postgres"
	"github.com/turbowrap/turbowrap/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	listenAddr := flag.String("listen",
		getEnv("LISTEN_ADDR", ":8080"),
		"HTTP listen address")
	artifactsDir := flag.String("artifacts-dir",
		getEnv("ARTIFACTS_DIR", "./artifacts"),
		"Directory for prompt/output artifact blobs")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting", "version", version.Full())

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Configuration failed", "error", err)
		os.Exit(1)
	}

	st, closeStore, err := openStore(ctx)
	if err != nil {
		slog.Error("Store initialization failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	sink, err := artifact.NewFSSink(*artifactsDir)
	if err != nil {
		slog.Error("Artifact sink initialization failed", "dir", *artifactsDir, "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	invoker := llm.NewCLIInvoker(cfg.Backends, cfg.Timeouts.Invocation, cfg.Thinking.BudgetTokens)
	recorder := artifact.NewRecorder(invoker, sink)
	engine := loop.NewEngine(recorder, st, m)
	checkpoints := checkpoint.NewManager(st)

	reviews := review.NewOrchestrator(cfg, engine, recorder, checkpoints, st)
	fixes := fix.NewOrchestrator(cfg, engine, st, nil)
	executor := service.NewExecutor(reviews, fixes)

	pool := queue.NewWorkerPool(*cfg.Queue, executor, st, m)
	pool.Start(ctx)

	server := api.NewServer(*listenAddr, pool, st, m)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			slog.Error("API server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("API shutdown failed", "error", err)
	}
	pool.Stop()
	slog.Info("Stopped")
}

// openStore selects the store backend: Postgres when DB_HOST is set, the
// in-memory store otherwise.
func openStore(ctx context.Context) (store.Store, func(), error) {
	host := os.Getenv("DB_HOST")
	if host == "" {
		slog.Info("Using in-memory store (set DB_HOST for PostgreSQL)")
		return store.NewMemoryStore(), func() {}, nil
	}

	port, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	pg, err := postgres.Open(ctx, postgres.Config{
		Host:            host,
		Port:            port,
		User:            getEnv("DB_USER", "turbowrap"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnv("DB_NAME", "turbowrap"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using PostgreSQL store", "host", host, "port", port)
	return pg, func() { _ = pg.Close() }, nil
}
