// sensorctl drives the device's attributes locally, without the cloud.
//
// It opens the same state database and board the agent uses, so it must
// not run while the agent holds the hardware lines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/crib-agent/internal/agent"
	"github.com/nerrad567/crib-agent/internal/cli"
	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
	"github.com/nerrad567/crib-agent/internal/infrastructure/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(openSession).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}

// openSession loads the config and opens a Runtime without metrics.
func openSession(ctx context.Context, path string) (*cli.Session, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// Keep stdout for command output.
	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	if os.Getenv("CRIB_LOG_LEVEL") == "" {
		logCfg.Level = "warn"
	}
	log := logging.New(logCfg, "sensorctl")

	rt, err := agent.OpenRuntime(ctx, cfg, log, nil)
	if err != nil {
		return nil, err
	}
	return &cli.Session{
		Dispatcher: rt.Dispatcher,
		Store:      rt.Store,
		Drivers:    rt.Registry.Names(),
		Close:      rt.Close,
	}, nil
}
