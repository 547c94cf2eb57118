package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/lockstep/internal/logger"
	"github.com/marmos91/lockstep/internal/telemetry"
	"github.com/marmos91/lockstep/pkg/adapter"
	"github.com/marmos91/lockstep/pkg/admission"
	"github.com/marmos91/lockstep/pkg/api"
	"github.com/marmos91/lockstep/pkg/config"
	"github.com/marmos91/lockstep/pkg/coordinator"
	"github.com/marmos91/lockstep/pkg/metrics/prometheus"
	"github.com/spf13/cobra"
)

var (
	startPort int
	startBind string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coordinator",
	Long: `Start the lockstep coordinator in the foreground.

The coordinator listens for clients (port 4999 by default), admits at most
one new client per cycle and broadcasts one numbered line per cycle to every
registered client.

Examples:
  # Start with defaults or the default config file
  lockstep start

  # Start on another port
  lockstep start --port 5000

  # Start with environment variable overrides
  LOCKSTEP_LOGGING_LEVEL=DEBUG LOCKSTEP_COORDINATOR_POLL_INTERVAL=500ms lockstep start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVarP(&startPort, "port", "p", 0, "TCP port for clients (overrides coordinator.port)")
	startCmd.Flags().StringVar(&startBind, "bind", "", "Bind address (overrides coordinator.bind_address)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Coordinator.Port = startPort
	}
	if cmd.Flags().Changed("bind") {
		cfg.Coordinator.BindAddress = startBind
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "lockstep",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "lockstep",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if digest, err := config.Digest(cfg); err == nil {
		logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()), "digest", digest)
	} else {
		logger.Warn("Configuration digest unavailable", logger.Err(err))
	}
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// Metrics must be initialized before any collector is constructed.
	metricsResult := config.InitializeMetrics(cfg)

	cc := cfg.Coordinator
	queue := admission.NewQueue(cc.QueueCapacity)
	prometheus.RegisterQueueDepth(queue)

	acceptor := adapter.NewAcceptor(adapter.Config{
		BindAddress:   cc.BindAddress,
		Port:          cc.Port,
		RejectTimeout: cc.RejectTimeout,
	}, queue, prometheus.NewAdmissionMetrics())

	coord := coordinator.New(coordinator.Config{
		PollInterval:     cc.PollInterval,
		MaxSendDelay:     cc.MaxSendDelay,
		AckTimeout:       cc.AckTimeout,
		ArrivalTimeout:   cc.ArrivalTimeout,
		ResolveHostnames: cc.ResolveHostnames,
	}, queue, prometheus.NewCoordinatorMetrics())

	watchConfig()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	run("acceptor", acceptor.Serve)
	run("coordinator", coord.Run)
	if metricsResult.Server != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		run("metrics", metricsResult.Server.Start)
	}
	if cfg.API.IsEnabled() {
		run("api", api.NewServer(cfg.API, coord).Start)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Coordinator is running. Press Ctrl+C to stop.",
		"port", cc.Port, "queue_capacity", cc.QueueCapacity, "poll_interval", cc.PollInterval)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case runErr = <-errCh:
		logger.Error("Component failed, shutting down", logger.Err(runErr))
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(cfg.ShutdownTimeout):
		return errors.Join(runErr, fmt.Errorf("shutdown timed out after %s", cfg.ShutdownTimeout))
	}

	logger.Info("Coordinator stopped")
	return runErr
}

// watchConfig reloads the log level whenever the config file changes.
func watchConfig() {
	path := GetConfigFile()
	if path == "" {
		if !config.DefaultConfigExists() {
			return
		}
		path = config.GetDefaultConfigPath()
	}

	err := config.Watch(path, func(c *config.Config) {
		logger.SetLevel(c.Logging.Level)
		logger.Info("Configuration reloaded", "level", c.Logging.Level)
	}, func(err error) {
		logger.Warn("Ignoring invalid configuration change", logger.Err(err))
	})
	if err != nil {
		logger.Warn("Configuration watch disabled", logger.Err(err))
	}
}
