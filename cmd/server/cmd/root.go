package cmd

import (
	"fmt"
	"os"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "rsvp",
		Short: "Togather RSVP server - event registration API",
		Long: `Togather RSVP server lets users publish events with a fixed number of
seats and register for them.

The server supports:
- Account registration and JWT sessions (bearer token or cookie)
- Event creation, search, update and deletion
- Seat registration and cancellation with capacity guarantees
- Email notifications through a transactional job queue`,
		// Run the serve command by default if no subcommand is specified
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), serveOptions{autoMigrate: true})
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (optional, uses env vars by default)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newVersionCommand(),
		newHealthcheckCommand(),
		newTokenCommand(),
	)
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config and the environment, then applies the logging
// flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return config.Config{}, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}
