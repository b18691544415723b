package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	saySession    string
	sayConfidence float64
	sayLocal      bool
)

var sayCmd = &cobra.Command{
	Use:   "say <transcript>",
	Short: "Run one spoken command through the engine",
	Long: `Run a single transcript through the engine and print the reply.

Useful for trying grammar phrasings and provider behaviour without a speech
frontend. Reuse --session to carry procedure state across invocations when
the redis session driver is configured.

Examples:
  fieldvoice say "create a high priority work order for PUMP-004"
  fieldvoice say "start the pump inspection procedure" --session demo
  fieldvoice say "next step" --session demo`,
	Args: cobra.ExactArgs(1),
	RunE: runSay,
}

func init() {
	sayCmd.Flags().StringVarP(&saySession, "session", "s", "", "session ID (default: a fresh one)")
	sayCmd.Flags().Float64VarP(&sayConfidence, "confidence", "c", 0.9, "simulated recognizer confidence")
	sayCmd.Flags().BoolVar(&sayLocal, "local", false, "skip the database backend")
}

func runSay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, sessions, err := buildEngine(ctx, !sayLocal)
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Close() }()

	sessionID := saySession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := p.Handle(ctx, sessionID, args[0], sayConfidence)
	if err != nil {
		logger.Error("command failed", "error", err)
	}

	fmt.Printf("[%s] %s\n", reply.Outcome, reply.Text)
	if reply.Action != nil {
		fmt.Printf("action: %s %v\n", reply.Action.Type, reply.Action.Fields)
	}
	return nil
}
