package mount

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrDeviceBusy is returned when another run already owns the device.
var ErrDeviceBusy = errors.New("device is locked by another run")

// DeviceLock is an exclusive advisory lock on a block device, held for the
// whole run so that two workloads never share the physical device.
type DeviceLock struct {
	fl *flock.Flock
}

// LockDevice takes the lock for device under dir without blocking.
func LockDevice(dir, device string) (*DeviceLock, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	name := strings.TrimPrefix(filepath.Clean(device), "/")
	name = strings.ReplaceAll(name, "/", "-")
	path := filepath.Join(dir, "fsperf-"+name+".lock")

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", device, ErrDeviceBusy)
	}
	return &DeviceLock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *DeviceLock) Path() string {
	return l.fl.Path()
}

// Unlock releases the lock. Safe to call on a nil lock.
func (l *DeviceLock) Unlock() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
