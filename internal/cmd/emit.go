package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/driftwatch/internal/telemetry"
)

// NewEmitCommand creates the 'driftwatch emit' command
func NewEmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Append one telemetry event to the telemetry log",
		Long: `Append a single behavioral event in the agent's telemetry format.

With --text, response_length and entropy are derived from the given
response text unless set explicitly.

Examples:
  driftwatch emit --kind tool_execution --tool-type shell_exec --exec-time 0.12 --iteration 3
  driftwatch emit --kind inference --inference-time 1.1 --text "uname -a output..."`,
		Args: cobra.NoArgs,
		RunE: runEmit,
	}

	cmd.Flags().String("kind", telemetry.KindInference, "Event kind (inference, tool_execution, ...)")
	cmd.Flags().String("tool-type", "", "Tool or model that produced the event")
	cmd.Flags().Float64("exec-time", 0, "Tool execution time in seconds")
	cmd.Flags().Float64("inference-time", 0, "Inference time in seconds")
	cmd.Flags().Int64("response-length", 0, "Response length in characters")
	cmd.Flags().Float64("entropy", 0, "Response entropy in bits per character")
	cmd.Flags().Int64("iteration", 0, "Agent loop iteration")
	cmd.Flags().String("text", "", "Response text to derive response-length and entropy from")

	return cmd
}

func runEmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ev, err := eventFromFlags(cmd)
	if err != nil {
		return err
	}

	w := telemetry.NewWriter(cfg.TelemetryPath)
	if err := w.Write(cmd.Context(), ev); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Appended %s event to %s\n", ev.Kind, cfg.TelemetryPath)
	return nil
}

// eventFromFlags builds an event from the explicitly set flags only.
func eventFromFlags(cmd *cobra.Command) (telemetry.BehaviorEvent, error) {
	flags := cmd.Flags()
	var ev telemetry.BehaviorEvent

	ev.Kind, _ = flags.GetString("kind")
	if ev.Kind == "" {
		return ev, fmt.Errorf("--kind cannot be empty")
	}
	ev.ToolType, _ = flags.GetString("tool-type")

	floatFlag := func(name string) (*float64, error) {
		if !flags.Changed(name) {
			return nil, nil
		}
		v, _ := flags.GetFloat64(name)
		if v < 0 {
			return nil, fmt.Errorf("--%s must be >= 0, got %v", name, v)
		}
		return telemetry.Float(v), nil
	}
	intFlag := func(name string) (*int64, error) {
		if !flags.Changed(name) {
			return nil, nil
		}
		v, _ := flags.GetInt64(name)
		if v < 0 {
			return nil, fmt.Errorf("--%s must be >= 0, got %d", name, v)
		}
		return telemetry.Int(v), nil
	}

	var err error
	if ev.ExecTime, err = floatFlag("exec-time"); err != nil {
		return ev, err
	}
	if ev.InferenceTime, err = floatFlag("inference-time"); err != nil {
		return ev, err
	}
	if ev.Entropy, err = floatFlag("entropy"); err != nil {
		return ev, err
	}
	if ev.ResponseLength, err = intFlag("response-length"); err != nil {
		return ev, err
	}
	if ev.Iteration, err = intFlag("iteration"); err != nil {
		return ev, err
	}

	if flags.Changed("text") {
		text, _ := flags.GetString("text")
		if ev.ResponseLength == nil {
			ev.ResponseLength = telemetry.Int(telemetry.ResponseLength(text))
		}
		if ev.Entropy == nil {
			ev.Entropy = telemetry.Float(telemetry.ShannonEntropy(text))
		}
	}

	return ev, nil
}
