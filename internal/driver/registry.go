// Package driver holds the fixed table of attribute drivers.
//
// A driver is the code that applies a desired value for one named
// attribute to hardware (or reads it back) and returns the value it
// actually settled on. The table is assembled once at startup; names that
// are not in it are never executed.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned by Resolve for a name with no registered driver.
var ErrNotFound = errors.New("driver: not found")

// Func applies primary (and any extra arguments in rest) to one attribute
// and returns the value the hardware settled on. Read-only drivers ignore
// their arguments and return a fresh reading.
type Func func(ctx context.Context, primary any, rest []any) (any, error)

// Registry is an immutable name to driver table.
type Registry struct {
	drivers map[string]Func
}

// NewRegistry builds a Registry from table. Empty names and nil drivers are
// rejected.
func NewRegistry(table map[string]Func) (*Registry, error) {
	drivers := make(map[string]Func, len(table))
	for name, fn := range table {
		if name == "" {
			return nil, errors.New("driver: empty attribute name")
		}
		if fn == nil {
			return nil, fmt.Errorf("driver: nil driver for %q", name)
		}
		drivers[name] = fn
	}
	return &Registry{drivers: drivers}, nil
}

// Resolve returns the driver registered for name.
func (r *Registry) Resolve(name string) (Func, error) {
	fn, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return fn, nil
}

// Names returns the registered attribute names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
