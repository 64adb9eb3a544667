package commands

import (
	"fmt"
	"os"

	"github.com/dropgate/dropgate/internal/cli/prompt"
	"github.com/dropgate/dropgate/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample Dropgate configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/dropgate/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dropgate init

  # Initialize with custom path
  dropgate init --config /etc/dropgate/config.yaml

  # Prompt for the most common settings
  dropgate init --interactive

  # Force overwrite existing config
  dropgate init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVar(&initInteractive, "interactive", false, "Prompt for the most common settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	if initInteractive {
		return runInitInteractive(configFile)
	}

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	printInitNextSteps(configPath)
	return nil
}

// runInitInteractive collects the most common settings and writes a
// customized configuration file.
func runInitInteractive(configFile string) error {
	cfg := config.GetDefaultConfig()

	dataDir, err := prompt.Input("Data directory", cfg.Storage.DataDir)
	if err != nil {
		return handleAbort(err)
	}
	cfg.Storage.DataDir = dataDir

	backend, err := prompt.SelectString("State backend", []string{
		config.StateBackendJSON,
		config.StateBackendBadger,
	})
	if err != nil {
		return handleAbort(err)
	}
	cfg.Storage.StateBackend = backend

	port, err := prompt.InputPort("API port", cfg.Server.Port)
	if err != nil {
		return handleAbort(err)
	}
	cfg.Server.Port = port

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath := configFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s", configPath), initForce)
		if err != nil {
			return handleAbort(err)
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := config.WriteConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	printInitNextSteps(configPath)
	return nil
}

func printInitNextSteps(configPath string) {
	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: dropgate start")
	fmt.Printf("  3. Or specify custom config: dropgate start --config %s\n", configPath)
}
