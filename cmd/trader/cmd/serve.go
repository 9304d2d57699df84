package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/wxtrader/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only status API and Prometheus metrics",
	Long: `Start an HTTP server exposing the ledger, positions, pending
recommendations, risk status, stations and history under /api/v1, plus
/health and /metrics. Stops gracefully on SIGINT or SIGTERM.

Example:
  trader serve --addr :8088`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Deps{
		Ledger:   a.ledger,
		Pending:  a.pending,
		Risk:     a.risk,
		Stations: a.stations,
		Journal:  a.history,
	})
	return srv.Run(ctx, addr)
}
