package agent

import (
	"bufio"
	"crypto/md5" //nolint:gosec // identifier digest, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
)

// ErrNoSerial is returned when the serial file has no Serial line.
var ErrNoSerial = errors.New("agent: board serial not found")

// ThingName returns the configured thing name, or the hex MD5 digest of the
// board serial read from cfg.SerialFile when none is configured.
func ThingName(cfg config.DeviceConfig) (string, error) {
	if cfg.ThingName != "" {
		return cfg.ThingName, nil
	}

	serial, err := readSerial(cfg.SerialFile)
	if err != nil {
		return "", err
	}
	// The digest covers the trailing newline, matching existing
	// registrations made with `md5sum`.
	sum := md5.Sum([]byte(serial + "\n")) //nolint:gosec // see import
	return hex.EncodeToString(sum[:]), nil
}

// readSerial extracts the value of the "Serial : ..." line of a cpuinfo file.
func readSerial(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading board serial: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Serial" {
			continue
		}
		if serial := strings.TrimSpace(value); serial != "" {
			return serial, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading board serial: %w", err)
	}
	return "", fmt.Errorf("%w in %s", ErrNoSerial, path)
}
