package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/crib-agent/internal/driver"
	"github.com/nerrad567/crib-agent/internal/state"
)

// Dispatch outcomes reported to an Observer.
const (
	OutcomeApplied = "applied"
	OutcomeUnknown = "unknown"
	OutcomeFailed  = "failed"
)

// Resolver looks up the driver for an attribute name.
type Resolver interface {
	Resolve(name string) (driver.Func, error)
}

// Observer is notified of every dispatch outcome.
type Observer interface {
	ObserveDispatch(attribute, outcome string)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver registers an outcome observer (typically metrics).
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher applies desired values through the driver table.
//
// Dispatch is safe for concurrent use; concurrent calls for different
// attributes do not serialise on each other.
type Dispatcher struct {
	drivers  Resolver
	store    state.Store
	logger   Logger
	observer Observer
}

// New creates a Dispatcher over the given driver table and store.
func New(drivers Resolver, store state.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		drivers: drivers,
		store:   store,
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch applies desired to the attribute called name and returns the
// value the driver settled on.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, desired any) (any, error) {
	fn, err := d.drivers.Resolve(name)
	if err != nil {
		d.observe(name, OutcomeUnknown)
		if errors.Is(err, driver.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
		}
		return nil, fmt.Errorf("%w: %q: %w", ErrUnknownAttribute, name, err)
	}

	primary, rest := Normalize(desired)

	applied, err := invoke(ctx, fn, primary, rest)
	if err != nil {
		d.observe(name, OutcomeFailed)
		return nil, &DriverError{Attribute: name, Err: err}
	}

	if err := d.store.Set(ctx, name, applied); err != nil {
		d.logger.Warn("state store write skipped", "attribute", name, "error", err)
	}

	d.observe(name, OutcomeApplied)
	d.logger.Debug("attribute applied", "attribute", name, "value", applied)
	return applied, nil
}

func (d *Dispatcher) observe(name, outcome string) {
	if d.observer != nil {
		d.observer.ObserveDispatch(name, outcome)
	}
}

// invoke runs fn, turning a panic into an error so one bad driver cannot
// take down the caller's goroutine.
func invoke(ctx context.Context, fn driver.Func, primary any, rest []any) (applied any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, primary, rest)
}
