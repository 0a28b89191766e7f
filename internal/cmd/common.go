package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/driftwatch/internal/alert"
	"github.com/harrison/driftwatch/internal/config"
	"github.com/harrison/driftwatch/internal/detector"
	"github.com/harrison/driftwatch/internal/logger"
	"github.com/harrison/driftwatch/internal/monitor"
	"github.com/harrison/driftwatch/internal/tailer"
)

// addConfigFlags registers the flags shared by every command that reads the
// configuration.
func addConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Path to config file (default: .driftwatch/config.yaml or $DRIFTWATCH_CONFIG)")
	cmd.PersistentFlags().String("telemetry", "", "Telemetry log to read (default: agent_behavior.log)")
	cmd.PersistentFlags().String("alerts", "", "Alert log to append to (default: alerts.log)")
	cmd.PersistentFlags().String("log-level", "", "Diagnostic verbosity (trace, debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", "", "Also write diagnostics to this rotated file")
	cmd.PersistentFlags().Bool("ledger", false, "Record alerts in the sqlite ledger")
}

// loadConfig resolves the configuration: defaults, then the config file,
// then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	configPath, _ := flags.GetString("config")
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var overrides config.Flags
	if flags.Changed("telemetry") {
		v, _ := flags.GetString("telemetry")
		overrides.TelemetryPath = &v
	}
	if flags.Changed("alerts") {
		v, _ := flags.GetString("alerts")
		overrides.AlertLogPath = &v
	}
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		overrides.LogLevel = &v
	}
	if flags.Changed("log-file") {
		v, _ := flags.GetString("log-file")
		overrides.LogFile = &v
	}
	if flags.Changed("ledger") {
		v, _ := flags.GetBool("ledger")
		overrides.Ledger = &v
	}
	if flags.Lookup("poll-interval") != nil && flags.Changed("poll-interval") {
		v, _ := flags.GetDuration("poll-interval")
		overrides.PollInterval = &v
	}
	if flags.Lookup("notify") != nil && flags.Changed("notify") {
		v, _ := flags.GetBool("notify")
		overrides.Notify = &v
	}
	cfg.MergeWithFlags(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger: stderr, plus the rotated file when
// configured. The returned func closes the file.
func newLogger(stderr io.Writer, cfg *config.Config) (logger.Logger, func(), error) {
	console := logger.NewConsoleLogger(stderr, cfg.LogLevel)
	if cfg.LogFile == "" {
		return console, func() {}, nil
	}

	fl, err := logger.NewFileLogger(cfg.LogFile, cfg.LogLevel, cfg.RotationConfig())
	if err != nil {
		return nil, nil, err
	}
	return logger.Multi(console, fl), func() { fl.Close() }, nil
}

// pipeline is a fully wired monitor and the resources it holds.
type pipeline struct {
	monitor *monitor.Monitor
	sink    *alert.Sink
	ledger  *alert.Ledger
	log     logger.Logger
	closers []func()
}

func (p *pipeline) Close() {
	if p.sink != nil {
		p.sink.Close()
	}
	if p.ledger != nil {
		p.ledger.Close()
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// newPipeline opens the alert log (and ledger) and wires tailer, detector
// and sink together. Startup failures are returned; nothing after this
// point stops the loop.
func newPipeline(cmd *cobra.Command, cfg *config.Config, interval time.Duration) (*pipeline, error) {
	log, closeLog, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	p := &pipeline{log: log, closers: []func(){closeLog}}

	opts := []alert.SinkOption{alert.WithConsole(cmd.OutOrStdout())}
	if cfg.Ledger.Enabled {
		ledger, err := alert.OpenLedger(cfg.Ledger.DBPath)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open alert ledger: %w", err)
		}
		p.ledger = ledger
		opts = append(opts, alert.WithLedger(ledger))
	}

	sink, err := alert.NewSink(cfg.AlertLogPath, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.sink = sink

	t := tailer.New(cfg.TelemetryPath,
		tailer.WithPollInterval(interval),
		tailer.WithNotify(cfg.Notify),
		tailer.WithLogger(log),
	)
	p.monitor = monitor.New(t, detector.New(cfg.ClassifierConfig()), sink, log)
	return p, nil
}
