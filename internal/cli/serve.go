package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldvoice/fieldvoice/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voice gateway",
	Long: `Run the WebSocket gateway that speech frontends connect to.

Each inbound frame carries one transcript with a session ID and recognizer
confidence; each outbound frame is the spoken reply plus any structured
action for the business layer.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "listen", "", "listen address (overrides FIELDVOICE_LISTEN)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	p, sessions, err := buildEngine(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Close() }()

	go sessions.RunSweeper(ctx, cfg.SessionSweepEvery)

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(addr, p, logger)
	return srv.Run(ctx)
}
