package hardware

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// OutputLine is a single digital output. *gpiocdev.Line satisfies it.
type OutputLine interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

// PWM is a pulse-width modulated channel with an 8-bit duty cycle.
type PWM interface {
	SetDuty(duty int) error
	Close() error
}

// Thermometer reads a temperature in degrees Celsius.
type Thermometer interface {
	Celsius() (float64, error)
}

// Motor is an optional speed-controlled actuator.
type Motor interface {
	SetRunning(on bool, rpm int) error
}

// ButtonEvent is one edge on a push button input.
type ButtonEvent struct {
	// Button is the zero-based index of the button in configuration order.
	Button int

	// Pressed is true for the press edge, false for the release.
	Pressed bool

	// At is a monotonic event timestamp; only differences are meaningful.
	At time.Duration
}

// ButtonSource delivers button edges.
type ButtonSource interface {
	Events() <-chan ButtonEvent
	Close() error
}

// Peripherals is the set of handles a Board drives. Motor and Buttons may
// be nil on boards without them.
type Peripherals struct {
	RedLED      OutputLine
	IRLED       OutputLine
	Light       PWM
	Thermometer Thermometer
	CPU         Thermometer
	Motor       Motor
	Buttons     ButtonSource

	closers []io.Closer
}

// addCloser registers c to be closed, in reverse order, by Close.
func (p *Peripherals) addCloser(c io.Closer) {
	p.closers = append(p.closers, c)
}

// Close releases every peripheral handle.
func (p *Peripherals) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("closing peripherals: %w", errors.Join(errs...))
	}
	return nil
}

func (p *Peripherals) validate() error {
	switch {
	case p.RedLED == nil:
		return errors.New("hardware: red LED line is required")
	case p.IRLED == nil:
		return errors.New("hardware: IR LED line is required")
	case p.Light == nil:
		return errors.New("hardware: light PWM channel is required")
	case p.Thermometer == nil:
		return errors.New("hardware: thermometer is required")
	case p.CPU == nil:
		return errors.New("hardware: CPU thermal zone is required")
	}
	return nil
}
