package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qca-lab/qca-sim/sim/pipeline"
	"github.com/qca-lab/qca-sim/sim/server"
)

var serveAddr string // Overrides server.addr

// serveCmd starts the HTTP server and blocks until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve queries, truth tables and runs over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		cat, err := openCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer cat.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := server.New(repo, cat, pipeline.NewExecutor(repo, cat))
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
}
