package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dropgate/dropgate/internal/logger"
	"github.com/dropgate/dropgate/internal/telemetry"
	"github.com/dropgate/dropgate/pkg/api"
	"github.com/dropgate/dropgate/pkg/config"
	"github.com/dropgate/dropgate/pkg/janitor"
	"github.com/dropgate/dropgate/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	startPort int
	pidFile   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Dropgate server",
	Long: `Start the Dropgate upload server with the specified configuration.

The server runs in the foreground; use a process supervisor for
daemonization. On startup any persistent upload left unfinished by a
previous run is recovered, so clients resume exactly where they
stopped.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dropgate/config.yaml.

Examples:
  # Start with default config
  dropgate start

  # Start with custom config file
  dropgate start --config /etc/dropgate/config.yaml

  # Override the API port from the command line
  dropgate start --port 9001

  # Start with environment variable overrides
  DROPGATE_LOGGING_LEVEL=DEBUG dropgate start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVar(&startPort, "port", 0, "Override the API port from configuration")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: none)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if startPort != 0 {
		if startPort < 1 || startPort > 65535 {
			return fmt.Errorf("invalid port: %d", startPort)
		}
		cfg.Server.Port = startPort
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dropgate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dropgate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("Dropgate - Resumable chunked file uploads")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Pick up log level edits without a restart. Watching requires an
	// existing config file, so a defaults-only boot skips this.
	if err := config.Watch(GetConfigFile(), func(updated *config.Config) {
		logger.SetLevel(updated.Logging.Level)
		logger.Info("Log level updated", "level", updated.Logging.Level)
	}); err != nil {
		logger.Debug("Config watch not active", "reason", err)
	}

	// Initialize metrics (if enabled)
	metricsResult := config.InitializeMetrics(cfg)

	// Open the durable state store and the chunk store
	stateStore, err := config.CreateStateStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() {
		if err := stateStore.Close(); err != nil {
			logger.Error("State store close error", "error", err)
		}
	}()

	chunkStore, err := config.CreateChunkStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open chunk store: %w", err)
	}
	logger.Info("Storage initialized",
		"data_dir", cfg.Storage.DataDir,
		"state_backend", cfg.Storage.StateBackend)

	// Discarded scratch directories are renamed aside and removed in
	// the background; the sweep reclaims whatever a previous run left
	// in the trash root.
	jan := janitor.New(chunkStore.TrashDir(), janitor.DefaultConfig())
	jan.Start(ctx)
	defer jan.Stop(5 * time.Second)
	chunkStore.SetJanitor(jan)
	if n, err := jan.Sweep(); err != nil {
		logger.Warn("Trash sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("Removing leftover trash", "count", n)
	}

	// Wire the upload manager
	manager, err := upload.NewManager(upload.Config{
		Store:    stateStore,
		Registry: upload.NewRegistry(),
		Chunks:   chunkStore,
		Metrics:  metricsResult.Uploads,
	})
	if err != nil {
		return fmt.Errorf("failed to create upload manager: %w", err)
	}

	// Recover persistent uploads left unfinished by a previous run
	if err := manager.RecoverPending(ctx); err != nil {
		return fmt.Errorf("failed to recover pending uploads: %w", err)
	}

	// Start metrics server if enabled
	if metricsResult.Server != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		go func() {
			if err := metricsResult.Server.Start(); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := metricsResult.Server.Stop(stopCtx); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Create the API server
	apiServer := api.NewServer(cfg.Server, manager, chunkStore)
	apiServer.SetShutdownTimeout(cfg.ShutdownTimeout)
	logger.Info("API server configured", "port", apiServer.Port())

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start serving in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
