// Config loading for the folio CLI.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/folio/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend     = "backend"
	cfgKeyDataDir     = "data_dir"
	cfgKeyLogLevel    = "log.level"
	cfgKeyLogPretty   = "log.pretty"
	cfgKeyMetricsFile = "metrics_file"
	cfgKeyPruneEvery  = "prune.interval"
)

// defaultConfigYAML is written to config.yaml on first run. Settings and
// licensed features are left commented out so built-in defaults apply and
// every feature is allowed.
const defaultConfigYAML = `# Folio configuration

# Backend selection
backend: sqlite

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

log:
  level: warn
  pretty: false

# Prometheus text file written after each command (optional)
# metrics_file:

# Features allowed for every domain. Leave unset to allow all.
# licensed_features: [versioning, workflow, automation]
# domain_features:
#   example.com: [versioning]

# Version history settings. Site values override global ones.
# settings:
#   VersionHistoryLength: 50
#   MajorVersionHistoryLength: 25
#   UseLastVersionInterval: 5   # minutes
#   PromoteToMajorInterval: 12  # hours
#   intranet:
#     VersionHistoryLength: 10

prune:
  interval: 1h
`

// loadConfig reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run. A missing config.yaml
// is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetDefault(cfgKeyPruneEvery, "1h")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if none exists.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
