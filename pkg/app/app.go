package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carecart/pkg/config"
	"carecart/pkg/logging"
	"carecart/pkg/version"
)

// options captures the persistent CLI flags shared by every command.
type options struct {
	configPath  string
	port        int
	domain      string
	storage     string
	storagePath string
	logLevel    string
}

// Run executes the carecart command line. Without a subcommand it serves the HTTP API.
func Run(ctx context.Context, args []string, out io.Writer) error {
	root := NewRootCommand(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Output of the inspection commands goes to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "carecart",
		Short:         "Pharmacy cart, checkout and order tracking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "carecart.yaml", "Path to the YAML configuration")
	flags.IntVar(&opts.port, "port", 0, "Port for the HTTP server when not using --domain")
	flags.StringVar(&opts.domain, "domain", "", "Serve HTTPS on 443 with an HTTP redirect on 80 for this domain")
	flags.StringVar(&opts.storage, "storage", "", "Storage backend: memory, snapshot or sqlite")
	flags.StringVar(&opts.storagePath, "storage-path", "", "File used by the snapshot and sqlite backends")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), opts)
			},
		},
		newOrderCommand(opts),
		newSimulateCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Show the application version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "carecart version %s\n", version.Version())
			},
		},
	)
	return root
}

// load reads the configuration file and applies flag overrides on top of it.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
	if o.domain != "" {
		cfg.Server.Domain = o.domain
	}
	if o.storage != "" {
		cfg.Storage.Backend = o.storage
	}
	if o.storagePath != "" {
		cfg.Storage.Path = o.storagePath
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup loads configuration and the logger every command needs.
func (o *options) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
