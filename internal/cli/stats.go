package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsSessions int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine usage statistics",
	Long: `Show aggregate statistics over stored memory and ended sessions.

Examples:
  fieldvoice stats
  fieldvoice stats --sessions 10`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsSessions, "sessions", 5, "recent sessions to list")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, err := getDB(ctx)
	if err != nil {
		return err
	}

	memCount, err := client.CountMemoryRecords(ctx)
	if err != nil {
		return fmt.Errorf("count memory records: %w", err)
	}

	archiveStats, err := client.QueryArchiveStats(ctx)
	if err != nil {
		return fmt.Errorf("archive stats: %w", err)
	}

	fmt.Printf("Memory records:     %d\n", memCount)
	fmt.Printf("Sessions ended:     %d\n", archiveStats.Total)
	fmt.Printf("  completed:        %d\n", archiveStats.Completed)
	fmt.Printf("  timed out:        %d\n", archiveStats.TimedOut)

	if statsSessions <= 0 || archiveStats.Total == 0 {
		return nil
	}

	archives, err := client.ListSessionArchives(ctx, statsSessions)
	if err != nil {
		return fmt.Errorf("list session archives: %w", err)
	}

	fmt.Println("\nRecent sessions:")
	for _, a := range archives {
		proc := a.ProcedureID
		if proc == "" {
			proc = "-"
		}
		fmt.Printf("  %s  %-24s %2d commands  %s\n",
			a.ClosedAt.Format("2006-01-02 15:04"), proc, a.Commands, a.Reason)
	}
	return nil
}
