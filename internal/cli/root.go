// Package cli wires the cobra command tree for the roost binary.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/kestrelworks/roost/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// initialized by the root PersistentPreRunE
	log *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roost",
		Short: "Roost — chat platform bot runner",
		Long:  "Roost connects a bot account to the Roost chat platform and dispatches inbound messages to command handlers.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "roost.yaml", "config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
