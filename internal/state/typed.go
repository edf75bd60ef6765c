package state

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// AsFloat coerces a JSON-ish scalar to float64. Strings are parsed;
// booleans map to 1 and 0.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint8:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsInt coerces v like AsFloat and rounds to the nearest integer.
func AsInt(v any) (int, bool) {
	f, ok := AsFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Int reads name from s as an integer. A missing attribute yields def.
func Int(ctx context.Context, s Store, name string, def int) (int, error) {
	attr, err := s.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	n, ok := AsInt(attr.Value)
	if !ok {
		return def, fmt.Errorf("state: %s holds non-numeric value %v", name, attr.Value)
	}
	return n, nil
}
