package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReplayCommand creates the 'driftwatch replay' command
func NewReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Classify the whole telemetry log once and exit",
		Long: `Read the telemetry log from the beginning, classify every sample exactly
as 'monitor' would, and exit at end of file. Running replay twice on the same
log produces the same alerts.`,
		Args: cobra.NoArgs,
		RunE: runReplay,
	}
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, err := newPipeline(cmd, cfg, cfg.PollInterval)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.monitor.RunOnce(cmd.Context()); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	stats := p.monitor.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d lines from %s: %d events, %d invalid, %d alerts\n",
		stats.Lines, cfg.TelemetryPath, stats.Events, stats.Invalid, stats.Alerts)
	if stats.LedgerErrors > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %d alerts were not recorded in the ledger\n", stats.LedgerErrors)
	}
	if stats.AlertErrors > 0 {
		return fmt.Errorf("%d alerts could not be written", stats.AlertErrors)
	}
	return nil
}
