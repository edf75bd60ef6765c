package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAttribute is returned when no driver is registered for the name.
	ErrUnknownAttribute = errors.New("dispatch: unknown attribute")

	// ErrDriverFailure matches every *DriverError.
	ErrDriverFailure = errors.New("dispatch: driver failure")
)

// DriverError reports a driver that returned an error or panicked.
type DriverError struct {
	Attribute string
	Err       error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("dispatch: driver for %q failed: %v", e.Attribute, e.Err)
}

// Unwrap exposes both ErrDriverFailure and the driver's own error.
func (e *DriverError) Unwrap() []error {
	return []error{ErrDriverFailure, e.Err}
}
