package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prekeyd/internal/app"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the key endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				cfg.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := app.NewWire(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := w.Close(); err != nil {
					log.Errorf("Error closing store: %v", err)
				}
			}()
			log.Infof("Using %s storage", cfg.Storage.Backend)
			return app.New(cfg, w, log).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

