package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/driftwatch/internal/detector"
	"github.com/harrison/driftwatch/internal/logger"
)

// DetectorConfig represents outlier detection settings
type DetectorConfig struct {
	// WindowSize is the number of recent samples kept per metric
	WindowSize int `yaml:"window_size"`

	// MinSamples is the smallest window that is classified
	MinSamples int `yaml:"min_samples"`

	// ZThreshold flags samples whose |z| exceeds it
	ZThreshold float64 `yaml:"z_threshold"`

	// IQRMultiplier scales the IQR above Q3 for the upper fence
	IQRMultiplier float64 `yaml:"iqr_multiplier"`
}

// LedgerConfig represents the optional sqlite alert history
type LedgerConfig struct {
	// Enabled records every alert in the ledger
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the ledger database
	DBPath string `yaml:"db_path"`
}

// Config represents driftwatch configuration options
type Config struct {
	// TelemetryPath is the agent's behavior log to follow
	TelemetryPath string `yaml:"telemetry_path"`

	// AlertLogPath is the append-only alert log
	AlertLogPath string `yaml:"alert_log_path"`

	// PollInterval is how often the telemetry file is checked
	PollInterval time.Duration `yaml:"poll_interval"`

	// Notify wakes the poller early on file change notifications
	Notify bool `yaml:"notify"`

	// LogLevel sets the diagnostic verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogFile is an optional rotated diagnostics file
	LogFile string `yaml:"log_file"`

	LogMaxSizeMB  int `yaml:"log_max_size_mb"`
	LogMaxBackups int `yaml:"log_max_backups"`
	LogMaxAgeDays int `yaml:"log_max_age_days"`

	Detector DetectorConfig `yaml:"detector"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cc := detector.DefaultClassifierConfig()
	rc := logger.DefaultRotationConfig()
	return &Config{
		TelemetryPath: "agent_behavior.log",
		AlertLogPath:  "alerts.log",
		PollInterval:  500 * time.Millisecond,
		Notify:        false,
		LogLevel:      "info",
		LogMaxSizeMB:  rc.MaxSizeMB,
		LogMaxBackups: rc.MaxBackups,
		LogMaxAgeDays: rc.MaxAgeDays,
		Detector: DetectorConfig{
			WindowSize:    cc.WindowSize,
			MinSamples:    cc.MinSamples,
			ZThreshold:    cc.ZThreshold,
			IQRMultiplier: cc.IQRMultiplier,
		},
		Ledger: LedgerConfig{
			Enabled: false,
			DBPath:  ".driftwatch/alerts.db",
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are strings in YAML
	type yamlConfig struct {
		TelemetryPath string         `yaml:"telemetry_path"`
		AlertLogPath  string         `yaml:"alert_log_path"`
		PollInterval  string         `yaml:"poll_interval"`
		Notify        bool           `yaml:"notify"`
		LogLevel      string         `yaml:"log_level"`
		LogFile       string         `yaml:"log_file"`
		LogMaxSizeMB  int            `yaml:"log_max_size_mb"`
		LogMaxBackups int            `yaml:"log_max_backups"`
		LogMaxAgeDays int            `yaml:"log_max_age_days"`
		Detector      DetectorConfig `yaml:"detector"`
		Ledger        LedgerConfig   `yaml:"ledger"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.TelemetryPath != "" {
		cfg.TelemetryPath = yamlCfg.TelemetryPath
	}
	if yamlCfg.AlertLogPath != "" {
		cfg.AlertLogPath = yamlCfg.AlertLogPath
	}
	if yamlCfg.PollInterval != "" {
		interval, err := time.ParseDuration(yamlCfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval format %q: %w", yamlCfg.PollInterval, err)
		}
		cfg.PollInterval = interval
	}
	if yamlCfg.Notify {
		cfg.Notify = true
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogFile != "" {
		cfg.LogFile = yamlCfg.LogFile
	}
	if yamlCfg.LogMaxSizeMB != 0 {
		cfg.LogMaxSizeMB = yamlCfg.LogMaxSizeMB
	}
	if yamlCfg.LogMaxBackups != 0 {
		cfg.LogMaxBackups = yamlCfg.LogMaxBackups
	}
	if yamlCfg.LogMaxAgeDays != 0 {
		cfg.LogMaxAgeDays = yamlCfg.LogMaxAgeDays
	}

	// Nested sections merge key by key so a partial section keeps the
	// remaining defaults
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, ok := rawMap["detector"].(map[string]interface{}); ok {
			d := yamlCfg.Detector
			if _, exists := section["window_size"]; exists {
				cfg.Detector.WindowSize = d.WindowSize
			}
			if _, exists := section["min_samples"]; exists {
				cfg.Detector.MinSamples = d.MinSamples
			}
			if _, exists := section["z_threshold"]; exists {
				cfg.Detector.ZThreshold = d.ZThreshold
			}
			if _, exists := section["iqr_multiplier"]; exists {
				cfg.Detector.IQRMultiplier = d.IQRMultiplier
			}
		}
		if section, ok := rawMap["ledger"].(map[string]interface{}); ok {
			if _, exists := section["enabled"]; exists {
				cfg.Ledger.Enabled = yamlCfg.Ledger.Enabled
			}
			if _, exists := section["db_path"]; exists {
				// Explicitly set db_path, even if empty string
				cfg.Ledger.DBPath = yamlCfg.Ledger.DBPath
			}
		}
	}

	return cfg, nil
}

// Flags holds CLI overrides; nil fields were not set on the command line
type Flags struct {
	TelemetryPath *string
	AlertLogPath  *string
	PollInterval  *time.Duration
	Notify        *bool
	LogLevel      *string
	LogFile       *string
	Ledger        *bool
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f Flags) {
	if f.TelemetryPath != nil {
		c.TelemetryPath = *f.TelemetryPath
	}
	if f.AlertLogPath != nil {
		c.AlertLogPath = *f.AlertLogPath
	}
	if f.PollInterval != nil {
		c.PollInterval = *f.PollInterval
	}
	if f.Notify != nil {
		c.Notify = *f.Notify
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogFile != nil {
		c.LogFile = *f.LogFile
	}
	if f.Ledger != nil {
		c.Ledger.Enabled = *f.Ledger
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	if c.TelemetryPath == "" {
		return fmt.Errorf("telemetry_path cannot be empty")
	}
	if c.AlertLogPath == "" {
		return fmt.Errorf("alert_log_path cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0, got %v", c.PollInterval)
	}

	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}
	if c.LogFile != "" {
		if c.LogMaxSizeMB <= 0 {
			return fmt.Errorf("log_max_size_mb must be > 0, got %d", c.LogMaxSizeMB)
		}
		if c.LogMaxBackups < 0 {
			return fmt.Errorf("log_max_backups must be >= 0, got %d", c.LogMaxBackups)
		}
		if c.LogMaxAgeDays < 0 {
			return fmt.Errorf("log_max_age_days must be >= 0, got %d", c.LogMaxAgeDays)
		}
	}

	if err := c.ClassifierConfig().Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	if c.Ledger.Enabled && c.Ledger.DBPath == "" {
		return fmt.Errorf("ledger.db_path cannot be empty when the ledger is enabled")
	}

	return nil
}

// ClassifierConfig returns the detector settings
func (c *Config) ClassifierConfig() detector.ClassifierConfig {
	return detector.ClassifierConfig{
		ZThreshold:    c.Detector.ZThreshold,
		IQRMultiplier: c.Detector.IQRMultiplier,
		WindowSize:    c.Detector.WindowSize,
		MinSamples:    c.Detector.MinSamples,
	}
}

// RotationConfig returns the diagnostics file rotation settings
func (c *Config) RotationConfig() logger.RotationConfig {
	return logger.RotationConfig{
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	}
}
