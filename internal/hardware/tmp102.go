package hardware

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
const i2cSlave = 0x0703

// TMP102 register pointers.
const (
	tmp102Temperature = 0x00
	tmp102Config      = 0x01
)

// TMP102 reads a TI TMP102 sensor through /dev/i2c-N.
type TMP102 struct {
	mu sync.Mutex
	fd int
}

// OpenTMP102 opens the sensor at addr on bus and sets 4 Hz conversion.
func OpenTMP102(bus, addr int) (*TMP102, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("select i2c address %#x: %w", addr, err)
	}

	t := &TMP102{fd: fd}
	if err := t.configure(); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return t, nil
}

func (t *TMP102) configure() error {
	cfg, err := t.readRegister(tmp102Config)
	if err != nil {
		return fmt.Errorf("read tmp102 config: %w", err)
	}
	// CR1:CR0 = 0b10 selects 4 Hz.
	cfg[1] = cfg[1]&0b00111111 | 0b10<<6
	if _, err := unix.Write(t.fd, []byte{tmp102Config, cfg[0], cfg[1]}); err != nil {
		return fmt.Errorf("write tmp102 config: %w", err)
	}
	return nil
}

func (t *TMP102) readRegister(reg byte) ([2]byte, error) {
	var buf [2]byte
	if _, err := unix.Write(t.fd, []byte{reg}); err != nil {
		return buf, err
	}
	n, err := unix.Read(t.fd, buf[:])
	if err != nil {
		return buf, err
	}
	if n != len(buf) {
		return buf, fmt.Errorf("short read: %d bytes", n)
	}
	return buf, nil
}

// Celsius returns the current temperature.
func (t *TMP102) Celsius() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd < 0 {
		return 0, ErrClosed
	}
	raw, err := t.readRegister(tmp102Temperature)
	if err != nil {
		return 0, fmt.Errorf("read tmp102 temperature: %w", err)
	}
	return DecodeTMP102(raw), nil
}

// Close releases the bus handle.
func (t *TMP102) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd < 0 {
		return nil
	}
	err := unix.Close(t.fd)
	t.fd = -1
	return err
}

// DecodeTMP102 converts the 12-bit two's complement temperature register.
func DecodeTMP102(raw [2]byte) float64 {
	v := int(raw[0])<<4 | int(raw[1])>>4
	if v&0x800 != 0 {
		v -= 1 << 12
	}
	return float64(v) * 0.0625
}
