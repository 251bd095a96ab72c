package mount

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockDeviceIsExclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := LockDevice(dir, "/dev/nvme0n1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fsperf-dev-nvme0n1.lock"), first.Path())

	_, err = LockDevice(dir, "/dev/nvme0n1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceBusy))

	other, err := LockDevice(dir, "/dev/nvme1n1")
	require.NoError(t, err)
	require.NoError(t, other.Unlock())

	require.NoError(t, first.Unlock())
	again, err := LockDevice(dir, "/dev/nvme0n1")
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestNilLockUnlock(t *testing.T) {
	var l *DeviceLock
	assert.NoError(t, l.Unlock())
}
