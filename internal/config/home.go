package config

import (
	"os"
	"path/filepath"
)

// HomeDirName is the per-project state directory
const HomeDirName = ".driftwatch"

// ConfigEnvVar overrides the default config file location
const ConfigEnvVar = "DRIFTWATCH_CONFIG"

// DefaultConfigPath returns the config file to load when --config is not
// given.
// Priority order:
//  1. DRIFTWATCH_CONFIG environment variable (if set)
//  2. .driftwatch/config.yaml in the current working directory
func DefaultConfigPath() string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	return filepath.Join(HomeDirName, "config.yaml")
}

// LoadConfigFromDir loads configuration from .driftwatch/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, HomeDirName, "config.yaml"))
}
