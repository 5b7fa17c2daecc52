package cli

import (
	"log/slog"

	"github.com/me/frameloop/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the frameloop CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "frameloop",
		Short: "Frame-driven task graph engine",
		Long:  "frameloop runs dependency-driven task graphs in frames, with typed context routing between tasks.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
	)

	return root
}
