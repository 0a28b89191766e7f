package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for driftwatch
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driftwatch",
		Short: "Behavioral drift detector for autonomous agents",
		Long: `Driftwatch follows an agent's behavioral telemetry log, keeps a rolling
window of recent timings, response lengths and response entropy, and raises
an alert whenever a new sample is a statistical outlier.

Alerts are printed and appended to an alert log. Every run reads the
telemetry log from the start, so restarting reproduces the same alerts.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	addConfigFlags(cmd)

	cmd.AddCommand(NewMonitorCommand())
	cmd.AddCommand(NewReplayCommand())
	cmd.AddCommand(NewEmitCommand())
	cmd.AddCommand(NewSimulateCommand())
	cmd.AddCommand(NewAlertsCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
