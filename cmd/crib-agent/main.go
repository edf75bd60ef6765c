// crib-agent keeps the device's actuators in step with its cloud shadow.
//
// It dispatches desired-state deltas to the board's drivers, reports the
// applied values back, and keeps the MQTT session, button watcher and
// sensor poller running under a supervisor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/crib-agent/internal/agent"
	"github.com/nerrad567/crib-agent/internal/api"
	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
	"github.com/nerrad567/crib-agent/internal/infrastructure/logging"
	"github.com/nerrad567/crib-agent/internal/metrics"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting crib agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	m := metrics.New()
	rt, err := agent.OpenRuntime(ctx, cfg, log, m)
	if err != nil {
		return fmt.Errorf("opening runtime: %w", err)
	}
	defer func() {
		log.Info("closing runtime")
		if closeErr := rt.Close(); closeErr != nil {
			log.Error("error closing runtime", "error", closeErr)
		}
	}()
	log.Info("runtime ready",
		"thing", rt.Thing,
		"attributes", rt.Registry.Names(),
		"simulate", cfg.Hardware.Simulate,
	)

	a, err := agent.New(rt)
	if err != nil {
		return fmt.Errorf("building agent: %w", err)
	}

	if cfg.API.Enabled {
		server, apiErr := startAPI(ctx, cfg, log, rt, a, m)
		if apiErr != nil {
			return fmt.Errorf("starting API: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("diagnostics API disabled")
	}

	log.Info("initialisation complete, running until shutdown signal")
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("running agent: %w", err)
	}

	log.Info("crib agent stopped")
	return nil
}

// startAPI starts the diagnostics server over the runtime and agent.
func startAPI(ctx context.Context, cfg *config.Config, log *logging.Logger, rt *agent.Runtime, a *agent.Agent, m *metrics.Metrics) (*api.Server, error) {
	health := map[string]api.HealthChecker{
		"database": rt,
		"shadow":   a,
	}
	if rt.History != nil {
		health["influxdb"] = rt.History
	}

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log.With("component", "api"),
		Thing:   rt.Thing,
		Version: version,
		Store:   rt.Store,
		Drivers: rt.Registry,
		Tasks:   a.Tasks,
		Metrics: m.Handler(),
		Health:  health,
	})
	if err != nil {
		return nil, err
	}
	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	return server, nil
}

// getConfigPath returns the configuration file path.
// Uses CRIB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CRIB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
