package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// configHeader is prepended to generated configuration files.
const configHeader = `# Dropgate Configuration File
#
# This file configures the Dropgate resumable upload service.
#
# Every value can be overridden with a DROPGATE_* environment variable,
# for example DROPGATE_LOGGING_LEVEL=DEBUG or DROPGATE_SERVER_PORT=9001.
# Sizes accept human-readable forms ("80MiB", "1Gi"); durations use Go
# syntax ("30s", "15m").
#
# The storage data_dir must exist and be writable by the service. It
# holds in-flight chunks (uploads/), assembled files (files/), and the
# durable upload state (state.json or badger/).

`

// InitConfig creates a default configuration file at the default
// location ($XDG_CONFIG_HOME/dropgate/config.yaml or
// ~/.config/dropgate/config.yaml).
//
// Returns the path of the created file. Fails if the file already
// exists unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a default configuration file at the given
// path. Fails if the file already exists unless force is true.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}
	return WriteConfig(GetDefaultConfig(), path)
}

// WriteConfig writes cfg to path with the standard file header,
// creating parent directories as needed. Existing files are
// overwritten.
func WriteConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	content := append([]byte(configHeader), data...)

	// Restricted permissions, the file may carry deployment-specific
	// endpoints.
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
