package cmd

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/driftwatch/internal/alert"
)

// NewAlertsCommand creates the 'driftwatch alerts' command
func NewAlertsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show recent alerts",
		Long: `Show the most recent alerts, newest last.

When the ledger is enabled, alerts are read from it with their event
context; otherwise the tail of the alert log is printed.`,
		Args: cobra.NoArgs,
		RunE: runAlerts,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of alerts to show (0 = all)")
	cmd.Flags().Bool("summary", false, "Show alert counts per metric (ledger only)")

	return cmd
}

func runAlerts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	summary, _ := cmd.Flags().GetBool("summary")
	out := cmd.OutOrStdout()

	if !cfg.Ledger.Enabled {
		if summary {
			return fmt.Errorf("--summary requires the alert ledger (enable ledger.enabled or pass --ledger)")
		}
		lines, err := alert.TailLog(cfg.AlertLogPath, limit)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			fmt.Fprintf(out, "No alerts in %s\n", cfg.AlertLogPath)
			return nil
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		return nil
	}

	ledger, err := alert.OpenLedger(cfg.Ledger.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open alert ledger: %w", err)
	}
	defer ledger.Close()

	if summary {
		counts, err := ledger.CountByMetric(cmd.Context())
		if err != nil {
			return err
		}
		metrics := make([]string, 0, len(counts))
		for m := range counts {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)

		color.New(color.Bold).Fprintln(out, "Alerts by metric:")
		for _, m := range metrics {
			fmt.Fprintf(out, "  %-16s %d\n", m, counts[m])
		}
		return nil
	}

	records, err := ledger.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(out, "No alerts in %s\n", cfg.Ledger.DBPath)
		return nil
	}

	// Oldest first, like the alert log
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		fmt.Fprintf(out, "%s  %s", r.RaisedAt.Local().Format("2006-01-02 15:04:05"), r.Message)
		if r.EventKind != "" {
			fmt.Fprintf(out, "  [%s @ %s]", r.EventKind, r.EventTimestamp)
		}
		fmt.Fprintln(out)
	}
	return nil
}
