package agent

import (
	"context"

	"github.com/nerrad567/crib-agent/internal/hardware"
)

// startupCommands put the board in a known state before tasks start.
var startupCommands = []struct {
	attribute string
	desired   any
}{
	{hardware.AttrIRLED, "off"},
	{hardware.AttrRedLED, "off"},
	{hardware.AttrLights, []any{"blink", 3}},
}

// Bootstrap runs the startup sequence. Failures are logged, never fatal.
func Bootstrap(ctx context.Context, d Dispatcher, log Logger) {
	for _, cmd := range startupCommands {
		if _, err := d.Dispatch(ctx, cmd.attribute, cmd.desired); err != nil {
			log.Warn("startup command failed", "attribute", cmd.attribute, "error", err)
		}
	}

	temp, err := d.Dispatch(ctx, hardware.AttrTemperature, nil)
	if err != nil {
		log.Warn("startup temperature read failed", "error", err)
		return
	}
	log.Info("current temperature", "celsius", temp)
}

// Dispatcher applies a desired value to one attribute.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, desired any) (any, error)
}
