package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/josefbacik/fsperf/internal/command"
)

// ErrNullBlkUnavailable is returned when null_blk cannot be configured on
// this kernel.
var ErrNullBlkUnavailable = errors.New("null_blk support not available")

// NullBlk is a configfs-backed null_blk device.
type NullBlk struct {
	Name string
	// Values are written to configfs attributes before power-on.
	Values map[string]string
	// ConfigFS is the configfs mount point.
	ConfigFS string
	SysFS    string

	exec    command.Executor
	started bool
}

// NewNullBlk returns an unstarted null_blk device called name.
func NewNullBlk(name string, values map[string]string, exec command.Executor) *NullBlk {
	return &NullBlk{
		Name:     name,
		Values:   values,
		ConfigFS: "/sys/kernel/config",
		SysFS:    DefaultSysFS,
		exec:     exec,
	}
}

// Path is the device node.
func (n *NullBlk) Path() string {
	return "/dev/" + n.Name
}

func (n *NullBlk) dir() string {
	return filepath.Join(n.ConfigFS, "nullb", n.Name)
}

// Start loads the module if needed, creates the device, applies Values and
// powers it on. Any failure wraps ErrNullBlkUnavailable.
func (n *NullBlk) Start(ctx context.Context) error {
	root := filepath.Join(n.ConfigFS, "nullb")
	if _, err := os.Stat(root); err != nil {
		if _, err := n.exec.Run(ctx, "modprobe null_blk nr_devices=0"); err != nil {
			return fmt.Errorf("%w: %w", ErrNullBlkUnavailable, err)
		}
	}
	if _, err := os.Stat("/dev/nullb0"); err == nil {
		// A default device from an earlier module load would shadow ours.
		if _, err := n.exec.Run(ctx, "rmmod null_blk"); err != nil {
			return fmt.Errorf("%w: %w", ErrNullBlkUnavailable, err)
		}
		if _, err := n.exec.Run(ctx, "modprobe null_blk nr_devices=0"); err != nil {
			return fmt.Errorf("%w: %w", ErrNullBlkUnavailable, err)
		}
	}

	if err := os.MkdirAll(n.dir(), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrNullBlkUnavailable, err)
	}
	keys := make([]string, 0, len(n.Values))
	for k := range n.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := os.WriteFile(filepath.Join(n.dir(), k), []byte(n.Values[k]), 0o644); err != nil {
			return fmt.Errorf("%w: set %s: %w", ErrNullBlkUnavailable, k, err)
		}
	}
	if err := os.WriteFile(filepath.Join(n.dir(), "power"), []byte("1"), 0o644); err != nil {
		return fmt.Errorf("%w: power on: %w", ErrNullBlkUnavailable, err)
	}
	n.started = true

	dev := &Device{Path: n.Path(), SysFS: n.SysFS}
	if err := dev.SetScheduler("none"); err != nil {
		return err
	}
	return nil
}

// Stop powers the device off and removes it. It is a no-op if Start did
// not complete.
func (n *NullBlk) Stop() error {
	if !n.started {
		return nil
	}
	if err := os.WriteFile(filepath.Join(n.dir(), "power"), []byte("0"), 0o644); err != nil {
		return fmt.Errorf("power off %s: %w", n.Name, err)
	}
	if err := os.Remove(n.dir()); err != nil {
		return fmt.Errorf("remove %s: %w", n.Name, err)
	}
	n.started = false
	return nil
}
