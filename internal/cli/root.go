// Package cli provides the command-line interface for fieldvoice.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

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
	"github.com/fieldvoice/fieldvoice/internal/session"
	"github.com/fieldvoice/fieldvoice/internal/session/drivers"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger
	cfg    config.Config
	logger *slog.Logger

	// Lazy-initialized collaborators
	dbClient   *db.Client
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fieldvoice",
	Short: "Voice command engine for field maintenance",
	Long: `Fieldvoice turns spoken technician commands into structured maintenance
actions: work orders, status queries, and guided step-by-step procedures.

It extracts intent locally, races AI providers for open questions, and keeps
a retrieval memory of past interactions so answers improve over time.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// getDB lazily connects to SurrealDB and initializes the schema. Commands
// that only read local procedure templates never pay the connection cost.
func getDB(ctx context.Context) (*db.Client, error) {
	if dbClient != nil {
		return dbClient, nil
	}

	client, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	dbClient = client
	return dbClient, nil
}

// newSessionStore builds the session store named by the configured driver.
func newSessionStore() (session.Store, error) {
	switch cfg.SessionDriver {
	case "memory", "":
		return drivers.NewInMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return drivers.NewRedisStore(client, cfg.SessionTimeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", session.ErrInvalidDriver, cfg.SessionDriver)
	}
}

// buildEngine wires the full pipeline from configuration. withBackend
// controls whether SurrealDB is attached for memory persistence and session
// archiving; one-shot local commands can run without it.
func buildEngine(ctx context.Context, withBackend bool) (*pipeline.Pipeline, *session.Manager, error) {
	embedder, err := memory.NewEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init embedder: %w", err)
	}

	memCfg := memory.Config{
		Weights: memory.Weights{
			Similarity: cfg.WeightSimilarity,
			Recency:    cfg.WeightRecency,
			Importance: cfg.WeightImportance,
		},
		RecencyHalfLife:   cfg.RecencyHalfLife,
		MaxAge:            cfg.MemoryMaxAge,
		MinKeepImportance: cfg.MemoryMinKeep,
	}

	storeOpts := []memory.StoreOption{memory.WithLogger(logger)}
	var archiver session.Archiver
	if withBackend {
		client, err := getDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		storeOpts = append(storeOpts, memory.WithPersister(client))
		archiver = client
	}

	mem := memory.NewStore(embedder, memCfg, storeOpts...)
	if withBackend {
		records, err := dbClient.ListMemoryRecords(ctx)
		if err != nil {
			logger.Warn("memory hydration failed, starting empty", "error", err)
		} else {
			mem.Hydrate(records)
			logger.Info("memory hydrated", "records", len(records))
		}
	}

	sessionStore, err := newSessionStore()
	if err != nil {
		return nil, nil, err
	}
	managerOpts := []session.ManagerOption{session.WithManagerLogger(logger)}
	if archiver != nil {
		managerOpts = append(managerOpts, session.WithArchiver(archiver))
	}
	sessions := session.NewManager(sessionStore, cfg.SessionTimeout, managerOpts...)

	library, err := loadProcedureLibrary(ctx, withBackend)
	if err != nil {
		return nil, nil, err
	}
	procedures := procedure.NewManager(library, logger)

	adapters, err := provider.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build providers: %w", err)
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
		procedures,
		mem,
		orch,
		compose.NewComposer(cfg.ClarifyThreshold),
		pipeline.WithResolver(assets.NewHTTPResolver(cfg.AssetAPIURL)),
		pipeline.WithDispatcher(business.NewHTTPDispatcher(cfg.BusinessAPIURL, logger)),
		pipeline.WithLogger(logger),
		pipeline.WithRetrieveK(cfg.MemoryTopK),
		pipeline.WithDeadline(cfg.PipelineDeadline),
	)
	return p, sessions, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(guideCmd)
	rootCmd.AddCommand(proceduresCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(statsCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
