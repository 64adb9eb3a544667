package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dropgate/dropgate/internal/logger"
)

// Watch monitors the configuration file and invokes onChange with each
// valid new configuration.
//
// Edits that fail to parse or validate are logged and skipped, so the
// running configuration stays in effect until a valid replacement is
// read. Viper watches the directory as well as the file, so atomic
// replace-by-rename (editors, configmap mounts) still triggers a
// reload.
//
// The watch runs on a background goroutine owned by viper and lives
// for the remainder of the process.
func Watch(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setupViper(v, configPath)

	// A watch needs an existing file to attach to.
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("cannot watch config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Debug("configuration file changed", logger.KeyPath, e.Name)

		var cfg Config
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			logger.Warn("ignoring config change: unmarshal failed", logger.KeyError, err)
			return
		}
		ApplyDefaults(&cfg)
		if err := Validate(&cfg); err != nil {
			logger.Warn("ignoring config change: validation failed", logger.KeyError, err)
			return
		}

		onChange(&cfg)
	})
	v.WatchConfig()

	return nil
}
