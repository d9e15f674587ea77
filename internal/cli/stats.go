package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print process metrics in Prometheus text format",
		Long: `Open the configured database and print the engine's process metrics
(transactions, queries, active contexts) in Prometheus text format.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, false, func(cmd *cobra.Command, s *session, _ []string) error {
			s.engine.WriteMetrics(cmd.OutOrStdout())
			return nil
		}),
	}
}

// Version is the release version, set at build time with
// -ldflags "-X github.com/roach88/factdb/internal/cli.Version=v1.2.3".
var Version = ""

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the factdb version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "factdb %s\n", version())
			return err
		},
	}
}

func version() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
