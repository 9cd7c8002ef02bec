package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// configFile holds the structure written to config.yaml by init.
type configFile struct {
	Backend string    `yaml:"backend"`
	DataDir string    `yaml:"data_dir,omitempty"`
	Log     logConfig `yaml:"log"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize folio storage",
		Long:  "Create configuration and data directories, then initialize the storage backend\nand seed the administrator account.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := resolveConfigDir()
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	dataDir, err := resolveDataDir(loadDataDirFromConfig(configDir))
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	configPath := filepath.Join(configDir, configFileExt)
	recorded := ""
	if flags.dataDir != "" {
		recorded = dataDir
	}
	if err := writeConfigIfMissing(configPath, recorded); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	backend := sqlite.NewBackend()
	if err := backend.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dataDir}); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	if err := backend.Detach(); err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Folio initialized in %s\n", dataDir)
	return nil
}

// writeConfigIfMissing creates config.yaml if the file does not exist. An
// existing file is left untouched.
func writeConfigIfMissing(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	cfg := configFile{
		Backend: types.BackendSQLite,
		DataDir: dataDir,
		Log:     logConfig{Level: "warn"},
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// loadDataDirFromConfig reads data_dir from an existing config.yaml.
// Returns "" if the file does not exist or cannot be parsed.
func loadDataDirFromConfig(configDir string) string {
	data, err := os.ReadFile(filepath.Join(configDir, configFileExt))
	if err != nil {
		return ""
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ""
	}
	return cfg.DataDir
}
