package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldvoice/fieldvoice/internal/db"
	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/procedure"
)

var proceduresCmd = &cobra.Command{
	Use:   "procedures [id]",
	Short: "List or show procedure templates",
	Long: `List the procedure templates in the configured directory, or show the
steps of one template.

Examples:
  fieldvoice procedures
  fieldvoice procedures pump-inspection`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcedures,
}

var proceduresSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the procedure templates to the database",
	Long: `Load the procedure templates from the configured directory and write
them to the database, replacing any stored versions with the same IDs.`,
	Args: cobra.NoArgs,
	RunE: runProceduresSync,
}

func init() {
	proceduresCmd.AddCommand(proceduresSyncCmd)
}

func runProceduresSync(cmd *cobra.Command, args []string) error {
	library, err := procedure.LoadLibrary(cfg.ProcedureDir)
	if err != nil {
		return fmt.Errorf("load procedure library: %w", err)
	}

	ctx := context.Background()

	procs, err := library.List(ctx)
	if err != nil {
		return fmt.Errorf("list procedures: %w", err)
	}
	if len(procs) == 0 {
		fmt.Printf("No procedures found in %s.\n", cfg.ProcedureDir)
		return nil
	}

	client, err := getDB(ctx)
	if err != nil {
		return err
	}

	for _, proc := range procs {
		if err := client.PutProcedure(ctx, *proc); err != nil {
			return fmt.Errorf("sync procedure %s: %w", proc.ID, err)
		}
		fmt.Printf("synced %s (%d steps)\n", proc.ID, len(proc.Steps))
	}
	fmt.Printf("%d procedures synced.\n", len(procs))
	return nil
}

// loadProcedureLibrary serves templates from the YAML directory, falling
// back to the copies stored by "procedures sync" when the directory is
// absent and a backend is available.
func loadProcedureLibrary(ctx context.Context, withBackend bool) (procedure.Library, error) {
	library, err := procedure.LoadLibrary(cfg.ProcedureDir)
	if err == nil {
		return library, nil
	}
	if !withBackend || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load procedure library: %w", err)
	}

	client, dbErr := getDB(ctx)
	if dbErr != nil {
		return nil, dbErr
	}
	logger.Info("procedure directory missing, using stored templates", "dir", cfg.ProcedureDir)
	return &dbLibrary{client: client}, nil
}

// dbLibrary serves procedure templates out of the document store.
type dbLibrary struct {
	client *db.Client
}

var _ procedure.Library = (*dbLibrary)(nil)

func (l *dbLibrary) Get(ctx context.Context, id string) (*models.Procedure, error) {
	proc, err := l.client.GetProcedure(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", procedure.ErrProcedureNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return proc, nil
}

func (l *dbLibrary) Find(ctx context.Context, ref string) (*models.Procedure, error) {
	lib, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return lib.Find(ctx, ref)
}

func (l *dbLibrary) List(ctx context.Context) ([]*models.Procedure, error) {
	lib, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return lib.List(ctx)
}

// snapshot loads all stored templates so spoken-name resolution works the
// same way it does for the file library.
func (l *dbLibrary) snapshot(ctx context.Context) (*procedure.FileLibrary, error) {
	procs, err := l.client.ListProcedures(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored procedures: %w", err)
	}
	out := make([]*models.Procedure, len(procs))
	for i := range procs {
		out[i] = &procs[i]
	}
	return procedure.NewStaticLibrary(out...), nil
}

func runProcedures(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	library, err := loadProcedureLibrary(ctx, true)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		proc, err := library.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get procedure: %w", err)
		}

		fmt.Printf("%s  (%s)\n", proc.Title, proc.ID)
		if proc.Duration > 0 {
			fmt.Printf("estimated duration: %s\n", proc.Duration)
		}
		fmt.Println()
		for _, step := range proc.Steps {
			fmt.Printf("%2d. %s\n", step.Index+1, step.Instruction)
			if len(step.SafetyFlags) > 0 {
				fmt.Printf("    ! %s\n", strings.Join(step.SafetyFlags, ", "))
			}
		}
		return nil
	}

	procs, err := library.List(ctx)
	if err != nil {
		return fmt.Errorf("list procedures: %w", err)
	}
	if len(procs) == 0 {
		fmt.Printf("No procedures found in %s.\n", cfg.ProcedureDir)
		return nil
	}

	for _, proc := range procs {
		fmt.Printf("%-24s %s (%d steps)\n", proc.ID, proc.Title, len(proc.Steps))
	}
	return nil
}
