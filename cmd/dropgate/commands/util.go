package commands

import (
	"fmt"

	"github.com/dropgate/dropgate/internal/cli/prompt"
	"github.com/dropgate/dropgate/internal/logger"
	"github.com/dropgate/dropgate/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// handleAbort converts a user abort (Ctrl+C) into a clean exit.
func handleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}
