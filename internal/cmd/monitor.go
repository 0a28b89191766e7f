package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewMonitorCommand creates the 'driftwatch monitor' command
func NewMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Follow the telemetry log and alert on outliers",
		Long: `Follow the agent's telemetry log and classify every new sample.

The log is read from the beginning, then polled for appended lines until
interrupted. Malformed lines are logged and skipped. Press Ctrl+C to stop.

Examples:
  driftwatch monitor
  driftwatch monitor --telemetry /var/log/agent/behavior.log --alerts alerts.log
  driftwatch monitor --poll-interval 1s --notify`,
		Args: cobra.NoArgs,
		RunE: runMonitor,
	}

	cmd.Flags().Duration("poll-interval", 500*time.Millisecond, "How often to check the telemetry log")
	cmd.Flags().Bool("notify", false, "Also wake on file change notifications")

	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, err := newPipeline(cmd, cfg, cfg.PollInterval)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	banner := color.New(color.FgCyan)
	banner.Fprintf(out, "Monitoring %s for behavioral outliers (polling every %s)...\n", cfg.TelemetryPath, cfg.PollInterval)

	if err := p.monitor.Run(cmd.Context()); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}

	stats := p.monitor.Stats()
	p.log.LogDebug(fmt.Sprintf("processed %d lines (%d events, %d invalid), %d alerts",
		stats.Lines, stats.Events, stats.Invalid, stats.Alerts))
	banner.Fprintln(out, "Monitoring stopped.")
	return nil
}
