package hardware

import "errors"

var (
	// ErrInvalidCommand is returned when a driver cannot interpret its arguments.
	ErrInvalidCommand = errors.New("hardware: invalid command")

	// ErrClosed is returned by peripherals used after Close.
	ErrClosed = errors.New("hardware: peripheral closed")
)
