package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"prekeyd/internal/app"
	"prekeyd/internal/logger"
	"prekeyd/internal/relay"
)

const defaultClientTimeout = 10 * time.Second

var (
	configFile string
	logLevel   string
	serverURL  string
	user       string
	password   string

	cfg *app.Config
	log logger.Logger
)

// Execute runs the prekeyd command line.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the prekeyd command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "prekeyd",
		Short:        "Prekey distribution server and client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = app.NewConfig(configFile); err != nil {
				return err
			}
			if logLevel != "" {
				if cfg.LogLevel, err = logger.GetLogLevel(logLevel); err != nil {
					return err
				}
			}
			log = logger.NewLogger(cfg.LogLevel)
			log.SetWriter(cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a yaml config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "server base URL for client commands")
	root.PersistentFlags().StringVarP(&user, "user", "u", "", "basic auth user: <number|uuid>[.<device>]")
	root.PersistentFlags().StringVarP(&password, "password", "p", "", "basic auth password")

	root.AddCommand(
		serveCmd(),
		sealCmd(), openCmd(),
		genkeysCmd(),
		uploadCmd(), fetchCmd(), countCmd(), signedCmd(),
		accountCmd(),
	)
	return root
}

func newClient(opts ...relay.ClientOption) *relay.Client {
	if user != "" {
		opts = append(opts, relay.WithBasicAuth(user, password))
	}
	return relay.NewClient(serverURL, opts...)
}

func clientContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), defaultClientTimeout)
}
