package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dropgate/dropgate/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the Dropgate configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dropgate config validate

  # Validate specific config file
  dropgate config validate --config /etc/dropgate/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	// A data directory under the system temp dir vanishes on reboot,
	// along with every in-flight chunk and assembled artifact.
	if strings.HasPrefix(cfg.Storage.DataDir, os.TempDir()+string(filepath.Separator)) {
		warnings = append(warnings, fmt.Sprintf("data directory %s is under the system temp directory - uploads will not survive a reboot", cfg.Storage.DataDir))
	}

	// Check the metrics listener does not collide with the API
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		warnings = append(warnings, fmt.Sprintf("metrics port %d equals the API port - one of the listeners will fail to bind", cfg.Metrics.Port))
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  State backend:   %s\n", cfg.Storage.StateBackend)
	fmt.Printf("  Data directory:  %s\n", cfg.Storage.DataDir)
	fmt.Printf("  API port:        %d\n", cfg.Server.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
