package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sponsorlab/gasless/service/cache"
	"github.com/sponsorlab/gasless/service/config"
	"github.com/sponsorlab/gasless/service/jupiter"
	"github.com/sponsorlab/gasless/service/metrics"
	"github.com/sponsorlab/gasless/service/nats"
	"github.com/sponsorlab/gasless/service/server"
	"github.com/sponsorlab/gasless/service/solana"
	"github.com/sponsorlab/gasless/service/swap"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cache store: Postgres when a database is configured, in-memory otherwise
	var store cache.Store
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		pgStore := cache.NewPostgresStore(dbPool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure cache schema", "error", err)
			os.Exit(1)
		}
		store = pgStore
		logger.Info("using postgres cache store")
	} else {
		store = cache.NewMemoryStore()
		logger.Info("using in-memory cache store")
	}

	// Fee payer keypair
	feePayer, err := solanago.PrivateKeyFromSolanaKeygenFile(cfg.FeePayerKeypairFile)
	if err != nil {
		logger.Error("failed to load fee payer keypair", "file", cfg.FeePayerKeypairFile, "error", err)
		os.Exit(1)
	}
	logger.Info("loaded fee payer keypair", "pubkey", feePayer.PublicKey().String())

	// Per-asset fee schedule
	schedule, err := config.LoadFeeSchedule(cfg.FeeSchedulePath)
	if err != nil {
		logger.Error("failed to load fee schedule", "path", cfg.FeeSchedulePath, "error", err)
		os.Exit(1)
	}
	if len(schedule) > 0 {
		logger.Info("loaded fee schedule", "assets", len(schedule))
	}

	// Metrics
	m := metrics.NewMetrics(nil)

	// Solana ledger facade
	// Note: For premium RPC endpoints, include the API key in the URL
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	ledger := solana.NewClient(solanaRPC, cfg.SolanaRPCURL, m, logger)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	// Routing service client
	router := jupiter.NewClient(cfg.RoutingBaseURL, nil, m, logger)
	logger.Info("initialized routing client", "base_url", cfg.RoutingBaseURL)

	// Optional NATS publisher for build events
	var publisher nats.Publisher
	if cfg.NATSURL != "" {
		p, err := nats.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Info("NATS not configured, build events disabled")
	}

	// Swap builder
	builder := swap.NewBuilder(ledger, router, store, schedule, feePayer, cfg, m, logger)

	// HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, builder, publisher, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
