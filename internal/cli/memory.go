package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldvoice/fieldvoice/internal/memory"
)

var (
	memoryAsset      string
	memoryImportance float64
	memoryLimit      int
	memoryMaxAge     time.Duration
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or seed the retrieval memory",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memory records",
	RunE:  runMemoryList,
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Store a maintenance note in memory",
	Long: `Store a note so future questions can retrieve it.

Examples:
  fieldvoice memory add "PUMP-004 uses seal kit SK-221" --asset PUMP-004
  fieldvoice memory add "compressor room requires ear protection" --importance 0.8`,
	Args: cobra.ExactArgs(1),
	RunE: runMemoryAdd,
}

var memoryEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Prune old low-importance records",
	Long: `Drop records older than the maximum age whose importance falls below the
keep threshold, from both the retrieval memory and the database.`,
	Args: cobra.NoArgs,
	RunE: runMemoryEvict,
}

func init() {
	memoryAddCmd.Flags().StringVar(&memoryAsset, "asset", "", "asset the note concerns")
	memoryAddCmd.Flags().Float64Var(&memoryImportance, "importance", 0.5, "salience from 0 to 1")
	memoryListCmd.Flags().IntVarP(&memoryLimit, "limit", "n", 20, "max records to show")
	memoryEvictCmd.Flags().DurationVar(&memoryMaxAge, "max-age", 0, "override the configured maximum record age")

	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryAddCmd)
	memoryCmd.AddCommand(memoryEvictCmd)
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, err := getDB(ctx)
	if err != nil {
		return err
	}

	records, err := client.ListMemoryRecords(ctx)
	if err != nil {
		return fmt.Errorf("list memory records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("Memory is empty.")
		return nil
	}

	// Newest last in storage order; show the tail.
	start := 0
	if len(records) > memoryLimit {
		start = len(records) - memoryLimit
	}
	for _, rec := range records[start:] {
		asset := rec.AssetID
		if asset == "" {
			asset = "-"
		}
		fmt.Printf("%s  %-12s imp=%.2f  %s\n",
			rec.Timestamp.Format("2006-01-02 15:04"), asset, rec.Importance, rec.SourceText)
	}
	fmt.Printf("\n%d of %d records shown\n", len(records)-start, len(records))
	return nil
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, err := getDB(ctx)
	if err != nil {
		return err
	}

	embedder, err := memory.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	// Persist synchronously: the process exits right after, so the store's
	// background write would race shutdown.
	store := memory.NewStore(embedder, memory.DefaultConfig(), memory.WithLogger(logger))
	rec, err := store.Insert(ctx, args[0], memoryAsset, memoryImportance)
	if err != nil {
		return fmt.Errorf("embed note: %w", err)
	}
	if err := client.PutMemoryRecord(ctx, rec); err != nil {
		return fmt.Errorf("store note: %w", err)
	}

	fmt.Printf("Stored %s\n", rec.ID)
	return nil
}

func runMemoryEvict(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, err := getDB(ctx)
	if err != nil {
		return err
	}

	records, err := client.ListMemoryRecords(ctx)
	if err != nil {
		return fmt.Errorf("list memory records: %w", err)
	}

	memCfg := memory.DefaultConfig()
	memCfg.MaxAge = cfg.MemoryMaxAge
	memCfg.MinKeepImportance = cfg.MemoryMinKeep
	if memoryMaxAge > 0 {
		memCfg.MaxAge = memoryMaxAge
	}

	store := memory.NewStore(nil, memCfg, memory.WithLogger(logger))
	store.Hydrate(records)

	dropped := store.Evict(time.Now())
	for _, rec := range dropped {
		if err := client.DeleteMemoryRecord(ctx, rec.ID); err != nil {
			return fmt.Errorf("delete record %s: %w", rec.ID, err)
		}
	}

	fmt.Printf("Evicted %d of %d records.\n", len(dropped), len(records))
	return nil
}
