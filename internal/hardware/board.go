package hardware

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/crib-agent/internal/driver"
	"github.com/nerrad567/crib-agent/internal/state"
)

// Attribute names served by the board.
const (
	AttrLights      = "lights"
	AttrRedLED      = "red_led"
	AttrIRLED       = "ir_led"
	AttrMotor       = "motor"
	AttrMicrophone  = "microphone"
	AttrVideo       = "video"
	AttrSpeakers    = "speakers"
	AttrTemperature = "temperature"
	AttrCPU         = "cpu"
)

// Light levels on the percent scale.
const (
	LightsOn    = 50
	LightsBoost = 100
	LightsOff   = 0

	defaultBlinks        = 3
	defaultBlinkInterval = 250 * time.Millisecond
)

// Logger interface for optional logging.
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

// BoardOptions configures a Board.
type BoardOptions struct {
	// BlinkInterval is the on and off half-period of the blink command.
	BlinkInterval time.Duration

	Logger Logger // Optional
}

// Board turns attribute commands into peripheral operations.
//
// Drivers read the current value of stateful attributes from the store;
// they never cache it.
type Board struct {
	p             *Peripherals
	store         state.Store
	blinkInterval time.Duration
	logger        Logger

	lightsMu sync.Mutex
	ledMu    sync.Mutex
}

// NewBoard wraps p. The board takes ownership of p and closes it on Close.
func NewBoard(p *Peripherals, store state.Store, opts BoardOptions) (*Board, error) {
	if p == nil {
		return nil, fmt.Errorf("hardware: peripherals are required")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("hardware: state store is required")
	}
	if opts.BlinkInterval <= 0 {
		opts.BlinkInterval = defaultBlinkInterval
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Board{
		p:             p,
		store:         store,
		blinkInterval: opts.BlinkInterval,
		logger:        opts.Logger,
	}, nil
}

// Drivers returns the board's attribute driver table.
func (b *Board) Drivers() map[string]driver.Func {
	return map[string]driver.Func{
		AttrLights:      b.Lights,
		AttrRedLED:      b.outputDriver(AttrRedLED, b.p.RedLED),
		AttrIRLED:       b.outputDriver(AttrIRLED, b.p.IRLED),
		AttrMotor:       b.Motor,
		AttrMicrophone:  b.switchDriver(AttrMicrophone),
		AttrVideo:       b.switchDriver(AttrVideo),
		AttrSpeakers:    b.switchDriver(AttrSpeakers),
		AttrTemperature: b.readDriver(AttrTemperature, b.p.Thermometer),
		AttrCPU:         b.readDriver(AttrCPU, b.p.CPU),
	}
}

// Buttons returns the board's button source, or nil if it has none.
func (b *Board) Buttons() ButtonSource {
	return b.p.Buttons
}

// Close releases all peripherals.
func (b *Board) Close() error {
	return b.p.Close()
}

// Lights drives the light channel on a 0-100 percent scale and returns the
// level it settled on.
//
//	on | off | boost        fixed levels 50, 0 and 100
//	set <n>                 absolute level, clamped
//	adjust <d>              relative to the stored level, clamped
//	blink [n]               flash n times (default 3), then restore
//	<number>                same as set
func (b *Board) Lights(ctx context.Context, primary any, rest []any) (any, error) {
	b.lightsMu.Lock()
	defer b.lightsMu.Unlock()

	level, err := b.lightLevel(ctx, primary, rest)
	if err != nil {
		return nil, err
	}

	if err := b.p.Light.SetDuty(percentToDuty(level)); err != nil {
		return nil, fmt.Errorf("set lights: %w", err)
	}
	b.logger.Debug("lights set", "percent", level, "duty", percentToDuty(level))
	return level, nil
}

func (b *Board) lightLevel(ctx context.Context, primary any, rest []any) (int, error) {
	if on, ok := primary.(bool); ok {
		if on {
			return LightsOn, nil
		}
		return LightsOff, nil
	}

	if cmd, ok := primary.(string); ok {
		switch strings.ToLower(strings.TrimSpace(cmd)) {
		case "on":
			return LightsOn, nil
		case "off":
			return LightsOff, nil
		case "boost":
			return LightsBoost, nil
		case "set":
			n, err := requiredIntArg("set", rest)
			if err != nil {
				return 0, err
			}
			return clamp(n, 0, 100), nil
		case "adjust":
			d, err := requiredIntArg("adjust", rest)
			if err != nil {
				return 0, err
			}
			current, err := b.currentLevel(ctx)
			if err != nil {
				return 0, err
			}
			return clamp(current+d, 0, 100), nil
		case "blink":
			n, err := intArg(rest, 0, defaultBlinks)
			if err != nil {
				return 0, err
			}
			current, err := b.currentLevel(ctx)
			if err != nil {
				return 0, err
			}
			if err := b.blink(ctx, n); err != nil {
				return 0, err
			}
			return current, nil
		}
	}

	if n, ok := state.AsInt(primary); ok {
		return clamp(n, 0, 100), nil
	}
	return 0, fmt.Errorf("%w: lights %v", ErrInvalidCommand, primary)
}

func (b *Board) currentLevel(ctx context.Context) (int, error) {
	level, err := state.Int(ctx, b.store, AttrLights, LightsOff)
	if err != nil {
		return 0, fmt.Errorf("read current lights level: %w", err)
	}
	return clamp(level, 0, 100), nil
}

func (b *Board) blink(ctx context.Context, times int) error {
	for i := 0; i < times; i++ {
		if err := b.p.Light.SetDuty(MaxDuty); err != nil {
			return fmt.Errorf("blink lights: %w", err)
		}
		if err := sleepCtx(ctx, b.blinkInterval); err != nil {
			return err
		}
		if err := b.p.Light.SetDuty(0); err != nil {
			return fmt.Errorf("blink lights: %w", err)
		}
		if err := sleepCtx(ctx, b.blinkInterval); err != nil {
			return err
		}
	}
	return nil
}

func (b *Board) outputDriver(name string, line OutputLine) driver.Func {
	return func(_ context.Context, primary any, _ []any) (any, error) {
		value, err := parseSwitch(primary)
		if err != nil {
			return nil, err
		}

		b.ledMu.Lock()
		defer b.ledMu.Unlock()
		if err := line.SetValue(value); err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
		b.logger.Debug("output set", "attribute", name, "value", value)
		return value, nil
	}
}

// Motor switches the motor and forwards an optional speed argument.
func (b *Board) Motor(_ context.Context, primary any, rest []any) (any, error) {
	value, err := parseSwitch(primary)
	if err != nil {
		return nil, err
	}
	rpm, err := intArg(rest, 0, 0)
	if err != nil {
		return nil, err
	}
	if b.p.Motor != nil {
		if err := b.p.Motor.SetRunning(value == 1, rpm); err != nil {
			return nil, fmt.Errorf("set motor: %w", err)
		}
	}
	b.logger.Debug("motor set", "value", value, "rpm", rpm)
	return value, nil
}

func (b *Board) switchDriver(name string) driver.Func {
	return func(_ context.Context, primary any, _ []any) (any, error) {
		value, err := parseSwitch(primary)
		if err != nil {
			return nil, err
		}
		b.logger.Debug("switch set", "attribute", name, "value", value)
		return value, nil
	}
}

// readDriver ignores its arguments and returns a fresh reading.
func (b *Board) readDriver(name string, t Thermometer) driver.Func {
	return func(context.Context, any, []any) (any, error) {
		c, err := t.Celsius()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return c, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
