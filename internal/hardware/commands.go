package hardware

import (
	"fmt"
	"strings"

	"github.com/nerrad567/crib-agent/internal/state"
)

// parseSwitch maps on/off style values to 1 or 0.
func parseSwitch(v any) (int, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "on", "true", "1", "yes":
			return 1, nil
		case "off", "false", "0", "no":
			return 0, nil
		}
	default:
		if n, ok := state.AsFloat(v); ok {
			if n != 0 {
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("%w: %v is not on or off", ErrInvalidCommand, v)
}

// intArg returns rest[i] as an integer, or def when absent.
func intArg(rest []any, i, def int) (int, error) {
	if i >= len(rest) || rest[i] == nil {
		return def, nil
	}
	n, ok := state.AsInt(rest[i])
	if !ok {
		return 0, fmt.Errorf("%w: argument %v is not a number", ErrInvalidCommand, rest[i])
	}
	return n, nil
}

// requiredIntArg is intArg without a default.
func requiredIntArg(command string, rest []any) (int, error) {
	if len(rest) == 0 || rest[0] == nil {
		return 0, fmt.Errorf("%w: %s needs a value", ErrInvalidCommand, command)
	}
	return intArg(rest, 0, 0)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// percentToDuty converts a 0-100 percentage to the 8-bit duty scale.
func percentToDuty(percent int) int {
	return clamp(percent, 0, 100) * MaxDuty / 100
}
