package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/imload/internal/logging"
)

var version = "0.1.0"

// NewRootCmd builds the imload command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "imload",
		Short:   "Load testing for the Fleets IM REST API",
		Version: version,
		Long: `imload simulates Fleets IM users against a running server.

Standard users log in, send messages, browse friends, conversations and
chat history, then log out. Administrative users page through the user
list. Load can be a fixed user count, a stepped ramp, or driven by a
Locust master in worker mode.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", logging.FormatConsole, "Log format (console, json)")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.AddCommand(newRunCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newShapeCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// newLogger builds the diagnostic logger from the persistent flags. Logs go
// to stderr.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	noColor, _ := cmd.Flags().GetBool("no-color")

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Writer = cmd.ErrOrStderr()
	cfg.Color = !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stderr.Fd())

	return logging.New(cfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the imload version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "imload %s\n", version)
		},
	}
}
