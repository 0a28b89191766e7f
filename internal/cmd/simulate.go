package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/driftwatch/internal/simulate"
	"github.com/harrison/driftwatch/internal/telemetry"
)

// NewSimulateCommand creates the 'driftwatch simulate' command
func NewSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write synthetic agent telemetry with injected drift",
		Long: `Append a benign baseline followed by drift scenarios to the telemetry log.
Run 'driftwatch monitor' in another shell to watch the alerts arrive, or
'driftwatch replay' afterwards.

Scenarios:
  probing       Enumerate system with repeated whoami calls
  runaway       Inject prompt: ignore safety and search endlessly
  exfiltration  High-complexity: generate random data exfiltration
  benign        Normal benign: check OS version

Without --scenario, --iterations scenarios are drawn at random using --seed.`,
		Args: cobra.NoArgs,
		RunE: runSimulate,
	}

	cmd.Flags().Uint64("seed", simulate.DefaultSeed, "Random seed")
	cmd.Flags().Int("baseline", simulate.DefaultOptions().Baseline, "Benign iterations written before any drift")
	cmd.Flags().Int("iterations", simulate.DefaultOptions().Iterations, "Random scenarios to run")
	cmd.Flags().StringSlice("scenario", nil, "Scenarios to run in order (repeatable)")
	cmd.Flags().Duration("delay", 0, "Pause between events (e.g. 200ms)")

	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := simulate.DefaultOptions()
	opts.Seed, _ = cmd.Flags().GetUint64("seed")
	opts.Baseline, _ = cmd.Flags().GetInt("baseline")
	opts.Iterations, _ = cmd.Flags().GetInt("iterations")
	opts.Scenarios, _ = cmd.Flags().GetStringSlice("scenario")
	delay, _ := cmd.Flags().GetDuration("delay")

	steps, err := simulate.Generate(opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	color.New(color.FgCyan).Fprintf(out, "Writing %d events to %s (seed %d)\n", len(steps), cfg.TelemetryPath, opts.Seed)

	current := ""
	for _, s := range steps {
		if s.Scenario != current {
			current = s.Scenario
			desc := "benign baseline"
			if sc, ok := simulate.Lookup(current); ok {
				desc = sc.Description
			}
			fmt.Fprintf(out, "  %s: %s\n", current, desc)
		}
	}

	n, err := simulate.Write(cmd.Context(), telemetry.NewWriter(cfg.TelemetryPath), steps, delay)
	if err != nil {
		return fmt.Errorf("simulation stopped after %d events: %w", n, err)
	}

	fmt.Fprintf(out, "Simulation complete. Check %s for detected outliers.\n", cfg.AlertLogPath)
	return nil
}
