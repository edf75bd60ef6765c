package hardware

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ThermalZone reads a Linux thermal zone temperature file, which holds
// millidegrees Celsius.
type ThermalZone struct {
	Path string
}

// Celsius returns the zone temperature.
func (z ThermalZone) Celsius() (float64, error) {
	data, err := os.ReadFile(z.Path)
	if err != nil {
		return 0, fmt.Errorf("read thermal zone: %w", err)
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse thermal zone %s: %w", z.Path, err)
	}
	return milli / 1000, nil
}
