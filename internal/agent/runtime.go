package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/crib-agent/internal/dispatch"
	"github.com/nerrad567/crib-agent/internal/driver"
	"github.com/nerrad567/crib-agent/internal/hardware"
	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
	"github.com/nerrad567/crib-agent/internal/infrastructure/database"
	"github.com/nerrad567/crib-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/crib-agent/internal/infrastructure/logging"
	"github.com/nerrad567/crib-agent/internal/metrics"
	"github.com/nerrad567/crib-agent/internal/state"
	"github.com/nerrad567/crib-agent/migrations"
)

// Runtime holds the agent's long-lived components.
type Runtime struct {
	Config     *config.Config
	Thing      string
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	DB         *database.DB
	Store      state.Store
	Board      *hardware.Board
	Registry   *driver.Registry
	Dispatcher *dispatch.Dispatcher
	History    *influxdb.Client

	closers []io.Closer
}

// OpenRuntime opens the state database (running migrations), the optional
// history recorder and the board, then builds the dispatcher over them.
// m may be nil.
func OpenRuntime(ctx context.Context, cfg *config.Config, log *logging.Logger, m *metrics.Metrics) (_ *Runtime, err error) {
	thing, err := ThingName(cfg.Device)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Thing: thing, Logger: log, Metrics: m}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.DB, err = database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	rt.closers = append(rt.closers, rt.DB)

	if err := rt.DB.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("migrating state database: %w", err)
	}

	store := state.Store(state.NewSQLiteStore(rt.DB.DB))
	if cfg.InfluxDB.Enabled {
		history, herr := influxdb.Connect(cfg.InfluxDB, thing)
		if herr != nil {
			// History is optional; the agent runs without it.
			log.Warn("attribute history disabled", "error", herr)
		} else {
			history.SetOnError(func(err error) {
				log.Warn("attribute history write failed", "error", err)
			})
			rt.History = history
			rt.closers = append(rt.closers, history)
			store = state.WithRecorder(store, history)
		}
	}
	rt.Store = store

	rt.Board, err = hardware.Open(cfg, store, log.With("component", "hardware"))
	if err != nil {
		return nil, fmt.Errorf("opening board: %w", err)
	}
	rt.closers = append(rt.closers, rt.Board)

	return rt, rt.buildDispatcher()
}

// NewRuntime assembles a Runtime around an existing board and store, for
// callers that manage those themselves.
func NewRuntime(cfg *config.Config, thing string, log *logging.Logger, m *metrics.Metrics, store state.Store, board *hardware.Board) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Thing: thing, Logger: log, Metrics: m, Store: store, Board: board}
	if err := rt.buildDispatcher(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) buildDispatcher() error {
	registry, err := driver.NewRegistry(rt.Board.Drivers())
	if err != nil {
		return fmt.Errorf("building driver registry: %w", err)
	}
	rt.Registry = registry

	opts := []dispatch.Option{dispatch.WithLogger(rt.Logger.With("component", "dispatch"))}
	if rt.Metrics != nil {
		opts = append(opts, dispatch.WithObserver(rt.Metrics))
	}
	rt.Dispatcher = dispatch.New(registry, rt.Store, opts...)
	return nil
}

// HealthCheck verifies the state database is reachable.
func (rt *Runtime) HealthCheck(ctx context.Context) error {
	if rt.DB == nil {
		return nil
	}
	return rt.DB.HealthCheck(ctx)
}

// Close releases everything OpenRuntime opened, newest first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
