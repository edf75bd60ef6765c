package state

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable is returned when the backend cannot be reached.
	ErrStoreUnavailable = errors.New("state: store unavailable")

	// ErrNotFound is returned by Get for an attribute that was never written.
	ErrNotFound = errors.New("state: attribute not found")
)

// Attribute is the persisted value of one device attribute.
type Attribute struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists the last applied value of each attribute.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the last value written for name.
	Get(ctx context.Context, name string) (Attribute, error)

	// Set records value for name, stamped with the current wall-clock time.
	Set(ctx context.Context, name string, value any) error

	// List returns every stored attribute ordered by name.
	List(ctx context.Context) ([]Attribute, error)
}
