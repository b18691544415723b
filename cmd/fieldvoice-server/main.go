// Package main provides the entry point for the fieldvoice voice gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fieldvoice/fieldvoice/internal/assets"
	"github.com/fieldvoice/fieldvoice/internal/business"
	"github.com/fieldvoice/fieldvoice/internal/compose"
	"github.com/fieldvoice/fieldvoice/internal/config"
	"github.com/fieldvoice/fieldvoice/internal/db"
	"github.com/fieldvoice/fieldvoice/internal/intent"
	"github.com/fieldvoice/fieldvoice/internal/memory"
	"github.com/fieldvoice/fieldvoice/internal/orchestrator"
	"github.com/fieldvoice/fieldvoice/internal/pipeline"
	"github.com/fieldvoice/fieldvoice/internal/procedure"
	"github.com/fieldvoice/fieldvoice/internal/provider"
	"github.com/fieldvoice/fieldvoice/internal/server"
	"github.com/fieldvoice/fieldvoice/internal/session"
	"github.com/fieldvoice/fieldvoice/internal/session/drivers"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("fieldvoice starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"providers", cfg.ProviderOrder,
		"listen", cfg.ListenAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing database connection")
		_ = dbClient.Close(ctx)
	}()

	if err := dbClient.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize database schema", "error", err)
		os.Exit(1)
	}

	// Retrieval memory, hydrated from the durable copy
	embedder, err := memory.NewEmbedder(cfg)
	if err != nil {
		logger.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	mem := memory.NewStore(embedder, memory.Config{
		Weights: memory.Weights{
			Similarity: cfg.WeightSimilarity,
			Recency:    cfg.WeightRecency,
			Importance: cfg.WeightImportance,
		},
		RecencyHalfLife:   cfg.RecencyHalfLife,
		MaxAge:            cfg.MemoryMaxAge,
		MinKeepImportance: cfg.MemoryMinKeep,
	}, memory.WithPersister(dbClient), memory.WithLogger(logger))

	if records, err := dbClient.ListMemoryRecords(ctx); err != nil {
		logger.Warn("memory hydration failed, starting empty", "error", err)
	} else {
		mem.Hydrate(records)
		logger.Info("memory hydrated", "records", len(records))
	}

	// Session store per configured driver
	var sessionStore session.Store
	switch cfg.SessionDriver {
	case "memory", "":
		sessionStore = drivers.NewInMemoryStore()
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		sessionStore = drivers.NewRedisStore(client, cfg.SessionTimeout)
	default:
		logger.Error("unknown session driver", "driver", cfg.SessionDriver)
		os.Exit(1)
	}
	sessions := session.NewManager(sessionStore, cfg.SessionTimeout,
		session.WithArchiver(dbClient), session.WithManagerLogger(logger))
	defer func() { _ = sessions.Close() }()
	go sessions.RunSweeper(ctx, cfg.SessionSweepEvery)

	// Procedure templates
	library, err := procedure.LoadLibrary(cfg.ProcedureDir)
	if err != nil {
		logger.Error("failed to load procedure library", "error", err, "dir", cfg.ProcedureDir)
		os.Exit(1)
	}

	// Provider race
	adapters, err := provider.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build providers", "error", err)
		os.Exit(1)
	}
	orch := orchestrator.New(adapters, orchestrator.Config{
		RaceWidth:       cfg.RaceWidth,
		ProviderTimeout: cfg.ProviderTimeout,
		GlobalDeadline:  cfg.PipelineDeadline,
		ConfidenceFloor: cfg.ConfidenceFloor,
	}, orchestrator.WithLogger(logger))

	p := pipeline.New(
		intent.New(),
		sessions,
		procedure.NewManager(library, logger),
		mem,
		orch,
		compose.NewComposer(cfg.ClarifyThreshold),
		pipeline.WithResolver(assets.NewHTTPResolver(cfg.AssetAPIURL)),
		pipeline.WithDispatcher(business.NewHTTPDispatcher(cfg.BusinessAPIURL, logger)),
		pipeline.WithLogger(logger),
		pipeline.WithRetrieveK(cfg.MemoryTopK),
		pipeline.WithDeadline(cfg.PipelineDeadline),
	)

	logger.Info("engine ready", "providers", len(adapters))

	srv := server.New(cfg.ListenAddr, p, logger)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
