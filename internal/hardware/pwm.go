package hardware

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// MaxDuty is the top of the 8-bit duty scale.
const MaxDuty = 255

// SysfsPWM drives one channel of a /sys/class/pwm chip.
type SysfsPWM struct {
	mu       sync.Mutex
	dir      string
	periodNS int
	closed   bool
}

// OpenSysfsPWM exports channel on chip if needed, sets its period and
// enables it with a zero duty cycle.
func OpenSysfsPWM(chip string, channel, periodNS int) (*SysfsPWM, error) {
	if periodNS <= 0 {
		return nil, fmt.Errorf("pwm period must be positive, got %d", periodNS)
	}

	dir := filepath.Join(chip, "pwm"+strconv.Itoa(channel))
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := writeSysfs(filepath.Join(chip, "export"), channel); err != nil {
			return nil, fmt.Errorf("export pwm channel %d: %w", channel, err)
		}
		// udev applies permissions asynchronously after export.
		if err := waitForPath(dir, time.Second); err != nil {
			return nil, err
		}
	}

	p := &SysfsPWM{dir: dir, periodNS: periodNS}
	steps := []struct {
		file  string
		value int
	}{
		{"duty_cycle", 0},
		{"period", periodNS},
		{"enable", 1},
	}
	for _, s := range steps {
		if err := writeSysfs(filepath.Join(dir, s.file), s.value); err != nil {
			return nil, fmt.Errorf("configure pwm %s: %w", s.file, err)
		}
	}
	return p, nil
}

// SetDuty applies duty on the 0..MaxDuty scale; out-of-range values are clamped.
func (p *SysfsPWM) SetDuty(duty int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	duty = clamp(duty, 0, MaxDuty)
	ns := int(int64(p.periodNS) * int64(duty) / MaxDuty)
	if err := writeSysfs(filepath.Join(p.dir, "duty_cycle"), ns); err != nil {
		return fmt.Errorf("set pwm duty: %w", err)
	}
	return nil
}

// Close disables the channel. The channel stays exported.
func (p *SysfsPWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return writeSysfs(filepath.Join(p.dir, "enable"), 0)
}

func writeSysfs(path string, value int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(value)), 0o644) //nolint:gosec // sysfs attribute
}

func waitForPath(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("waiting for %s: %w", path, fs.ErrNotExist)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
