package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/cache"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/config"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/engine"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/ensure"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/markets"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/pda"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/resolver"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpcpool"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/server"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/txbuilder"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main is the entry point for the API server
// It initializes all dependencies and starts the HTTP server with graceful shutdown
func main() {
	// Initialize structured logger with custom formatting
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	// Load configuration from environment variables
	cfg := config.Load()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown (Ctrl+C, SIGTERM)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Load the program's interface description into the typed registry
	reg, err := idl.Load(cfg.IDLPath, cfg.ProgramIDOverride)
	if err != nil {
		logger.WithError(err).Fatal("failed to load interface description")
	}

	// Load market configuration (compiled defaults plus optional override)
	mkts, err := markets.NewRegistry(cfg.MarketsPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load markets")
	}

	// Build the failover RPC pool over the configured endpoints
	pool, err := rpcpool.New(rpcpool.Config{
		Endpoints:           cfg.RPCEndpoints,
		Timeout:             cfg.HTTPTimeout,
		AttemptsPerEndpoint: cfg.AttemptsPerEndpoint,
		MaxRotations:        cfg.MaxRotations,
		BackoffBase:         cfg.RetryBackoff,
		Logger:              logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build rpc pool")
	}

	// Initialize Redis-backed recent-activity cache (optional)
	var rcache *cache.Cache
	if cfg.RedisAddr != "" {
		rcache = cache.New(cfg.RedisAddr)
		if err := rcache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, activity endpoints degraded")
			rcache = nil
		} else {
			defer func() {
				_ = rcache.Close()
			}()
		}
	}

	// The API surface is simulate-only; no signer or submission path here
	deriver := pda.NewDeriver(reg, logger)
	builder := txbuilder.New(reg, pool, logger)
	builder.PriorityFee = cfg.PriorityFeeMicroLamports
	builder.ComputeUnitLimit = cfg.ComputeUnitLimit

	eng := engine.New(engine.Options{
		Registry: reg,
		Markets:  mkts,
		Resolver: resolver.New(reg, mkts, deriver, logger),
		Ensurer:  ensure.New(pool, logger),
		Builder:  builder,
		Pool:     pool,
		Cache:    rcache,
		Logger:   logger,
	})

	// Create handlers with all dependencies injected
	h := &server.Handlers{
		Engine:   eng,
		Registry: reg,
		Markets:  mkts,
		Deriver:  deriver,
		Cache:    rcache,
		Logger:   logger,
	}

	// Create HTTP server with configuration and handlers
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr, // Server bind address (e.g., ":8080")
			DevMode: cfg.DevMode, // Development mode flag
			APIKey:  cfg.APIKey,  // Optional API key for authentication
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	// Setup graceful shutdown in a separate goroutine
	go func() {
		<-sigCh // Wait for shutdown signal
		logger.Info("shutting down")
		cancel()                               // Cancel context to stop ongoing operations
		_ = srv.Shutdown(context.Background()) // Gracefully shutdown HTTP server
	}()

	// Start the HTTP server
	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil {
		// "http: Server closed" is expected during graceful shutdown
		if err.Error() == "http: Server closed" {
			return
		}
		logger.WithError(err).Fatal("api server failed")
	}

	// Wait for server to be fully shut down
	if err := srv.WaitClosed(context.Background()); err != nil {
		fmt.Println(err)
	}
}
