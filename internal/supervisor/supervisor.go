package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status represents the current state of a supervised task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 5 * time.Second

// Task is a long-lived unit of work. Run should block until ctx is done.
// Returning early, with or without an error, is treated as termination.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

// Factory builds a fresh Task instance. It is called once at start and
// again for every restart.
type Factory func() (Task, error)

// Config holds supervisor settings.
type Config struct {
	// PollInterval is how often task liveness is checked.
	PollInterval time.Duration

	// OnExit is called when a task terminates while the supervisor runs.
	OnExit func(name string, err error)

	// OnRestart is called before each replacement instance is built.
	OnRestart func(name string, attempt int)
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ErrAlreadyRunning is returned by Add and Run once Run has been called.
var ErrAlreadyRunning = errors.New("supervisor: already running")

// entry is one supervised task and its bookkeeping.
type entry struct {
	name    string
	factory Factory

	done         chan struct{}
	status       Status
	restartCount int
	lastError    error
	startTime    time.Time
}

// Supervisor runs a fixed set of named tasks and restarts them on exit.
type Supervisor struct {
	config Config
	logger Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	running bool
	wg      sync.WaitGroup
}

// New creates a supervisor. Add tasks before calling Run.
func New(cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Supervisor{
		config:  cfg,
		logger:  noopLogger{},
		entries: make(map[string]*entry),
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Add registers a named task. Names must be unique.
func (s *Supervisor) Add(name string, factory Factory) error {
	if name == "" {
		return errors.New("supervisor: task name is required")
	}
	if factory == nil {
		return fmt.Errorf("supervisor: task %s has no factory", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("supervisor: task %s already added", name)
	}
	s.entries[name] = &entry{name: name, factory: factory, status: StatusPending}
	s.order = append(s.order, name)
	return nil
}

// Run starts every task and monitors them until ctx is done, then waits
// for all task goroutines to return.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	if len(names) == 0 {
		return errors.New("supervisor: no tasks added")
	}

	for _, name := range names {
		s.start(ctx, name)
	}
	s.logger.Info("supervisor started", "tasks", len(names), "poll_interval", s.config.PollInterval)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopping, waiting for tasks")
			s.wg.Wait()
			s.logger.Info("supervisor stopped")
			return nil
		case <-ticker.C:
			s.poll(ctx, names)
		}
	}
}

// poll restarts every task that is no longer running.
func (s *Supervisor) poll(ctx context.Context, names []string) {
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if s.alive(name) {
			continue
		}

		s.mu.Lock()
		e := s.entries[name]
		e.restartCount++
		attempt := e.restartCount
		lastErr := e.lastError
		s.mu.Unlock()

		s.logger.Warn("restarting task",
			"task", name,
			"attempt", attempt,
			"last_error", lastErr,
		)
		if s.config.OnRestart != nil {
			s.config.OnRestart(name, attempt)
		}
		s.start(ctx, name)
	}
}

func (s *Supervisor) alive(name string) bool {
	s.mu.RLock()
	e := s.entries[name]
	done := e.done
	s.mu.RUnlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// start builds a fresh instance of the named task and runs it.
func (s *Supervisor) start(ctx context.Context, name string) {
	s.mu.RLock()
	e := s.entries[name]
	factory := e.factory
	s.mu.RUnlock()

	task, err := buildTask(factory)
	if err != nil {
		s.logger.Error("building task failed", "task", name, "error", err)
		s.mu.Lock()
		e.done = nil
		e.status = StatusFailed
		e.lastError = err
		s.mu.Unlock()
		return
	}

	done := make(chan struct{})
	s.mu.Lock()
	e.done = done
	e.status = StatusRunning
	e.startTime = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)

		err := runTask(ctx, task)

		s.mu.Lock()
		e.lastError = err
		if err != nil && ctx.Err() == nil {
			e.status = StatusFailed
		} else {
			e.status = StatusExited
		}
		s.mu.Unlock()

		if ctx.Err() != nil {
			s.logger.Debug("task stopped", "task", name)
			return
		}
		if err != nil {
			s.logger.Error("task terminated", "task", name, "error", err)
		} else {
			s.logger.Warn("task returned unexpectedly", "task", name)
		}
		if s.config.OnExit != nil {
			s.config.OnExit(name, err)
		}
	}()
}

func buildTask(factory Factory) (task Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panic: %v", r)
		}
	}()
	task, err = factory()
	if err == nil && task == nil {
		err = errors.New("factory returned nil task")
	}
	return task, err
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task.Run(ctx)
}

// Stats describes one supervised task.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for every task, sorted by name.
func (s *Supervisor) Stats() []Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]Stats, 0, len(s.entries))
	for _, e := range s.entries {
		st := Stats{
			Name:         e.name,
			Status:       e.status,
			RestartCount: e.restartCount,
		}
		if e.status == StatusRunning {
			st.Uptime = time.Since(e.startTime)
		}
		if e.lastError != nil {
			st.LastError = e.lastError.Error()
		}
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// RestartCount returns how often the named task has been restarted.
func (s *Supervisor) RestartCount(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[name]; ok {
		return e.restartCount
	}
	return 0
}
