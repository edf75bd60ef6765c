package hardware

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
	"github.com/nerrad567/crib-agent/internal/state"
)

// Open builds the board described by cfg. With cfg.Simulate set every
// peripheral is an in-memory fake.
func Open(cfg *config.Config, store state.Store, logger Logger) (*Board, error) {
	opts := BoardOptions{
		BlinkInterval: cfg.BlinkInterval(),
		Logger:        logger,
	}

	if cfg.Hardware.Simulate {
		return NewBoard(NewSim().Peripherals(), store, opts)
	}

	p, err := openPeripherals(cfg.Hardware)
	if err != nil {
		return nil, err
	}
	board, err := NewBoard(p, store, opts)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return board, nil
}

func openPeripherals(cfg config.HardwareConfig) (_ *Peripherals, err error) {
	p := &Peripherals{}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	chip, err := gpiocdev.NewChip(cfg.GPIO.Chip, gpiocdev.WithConsumer("crib-agent"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.GPIO.Chip, err)
	}
	p.addCloser(chip)

	red, err := requestOutput(chip, cfg.GPIO.RedLEDPin)
	if err != nil {
		return nil, err
	}
	p.addCloser(red)
	p.RedLED = red

	ir, err := requestOutput(chip, cfg.GPIO.IRLEDPin)
	if err != nil {
		return nil, err
	}
	p.addCloser(ir)
	p.IRLED = ir

	if len(cfg.Buttons.Pins) > 0 {
		buttons, err := OpenGPIOButtons(chip, cfg.Buttons.Pins)
		if err != nil {
			return nil, err
		}
		p.addCloser(buttons)
		p.Buttons = buttons
	}

	pwm, err := OpenSysfsPWM(cfg.PWM.Chip, cfg.PWM.Channel, cfg.PWM.PeriodNS)
	if err != nil {
		return nil, fmt.Errorf("open light pwm: %w", err)
	}
	p.addCloser(pwm)
	p.Light = pwm

	sensor, err := OpenTMP102(cfg.I2C.Bus, cfg.I2C.Address)
	if err != nil {
		return nil, fmt.Errorf("open temperature sensor: %w", err)
	}
	p.addCloser(sensor)
	p.Thermometer = sensor

	p.CPU = ThermalZone{Path: cfg.Thermal.Path}

	return p, nil
}
