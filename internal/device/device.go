// Package device wraps the block device under test: I/O scheduler and
// read policy knobs in sysfs, blkid lookups and mkfs.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/josefbacik/fsperf/internal/command"
)

// DefaultSysFS is where sysfs is mounted.
const DefaultSysFS = "/sys"

// ErrNoReadPolicy is returned when the filesystem does not expose a btrfs
// read policy.
var ErrNoReadPolicy = errors.New("read policy not supported")

// Device is one block device.
type Device struct {
	Path  string
	SysFS string

	exec command.Executor
}

// New returns the device at path using exec for external tools.
func New(path string, exec command.Executor) *Device {
	return &Device{Path: path, SysFS: DefaultSysFS, exec: exec}
}

// Name is the kernel name of the device, e.g. "nvme0n1".
func (d *Device) Name() string {
	return filepath.Base(d.Path)
}

func (d *Device) sysfs(parts ...string) string {
	root := d.SysFS
	if root == "" {
		root = DefaultSysFS
	}
	return filepath.Join(append([]string{root}, parts...)...)
}

// SetScheduler selects the block layer I/O scheduler.
func (d *Device) SetScheduler(name string) error {
	path := d.sysfs("block", d.Name(), "queue", "scheduler")
	if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
		return fmt.Errorf("set scheduler %q on %s: %w", name, d.Name(), err)
	}
	return nil
}

// Mkfs formats the device with the given mkfs command prefix.
func (d *Device) Mkfs(ctx context.Context, mkfs string) error {
	if strings.TrimSpace(mkfs) == "" {
		return nil
	}
	if _, err := d.exec.Run(ctx, mkfs+" "+d.Path); err != nil {
		return fmt.Errorf("mkfs %s: %w", d.Path, err)
	}
	return nil
}

// FSType returns the filesystem type blkid reports.
func (d *Device) FSType(ctx context.Context) (string, error) {
	return d.blkid(ctx, "TYPE")
}

// FSID returns the filesystem UUID blkid reports.
func (d *Device) FSID(ctx context.Context) (string, error) {
	return d.blkid(ctx, "UUID")
}

func (d *Device) blkid(ctx context.Context, tag string) (string, error) {
	out, err := d.exec.Run(ctx, fmt.Sprintf("blkid -s %s -o value %s", tag, d.Path))
	if err != nil {
		return "", fmt.Errorf("blkid %s: %w", tag, err)
	}
	val := strings.TrimSpace(out)
	if val == "" {
		return "", fmt.Errorf("blkid %s: no value for %s", tag, d.Path)
	}
	return val, nil
}

var activePolicy = regexp.MustCompile(`\[([A-Za-z0-9_:]+)\]`)

// ReadPolicies returns the btrfs read policies available on the mounted
// filesystem and the active one.
func (d *Device) ReadPolicies(ctx context.Context) ([]string, string, error) {
	path, err := d.readPolicyPath(ctx)
	if err != nil {
		return nil, "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNoReadPolicy
		}
		return nil, "", fmt.Errorf("read policy: %w", err)
	}
	var (
		policies []string
		active   string
	)
	for _, f := range strings.Fields(string(raw)) {
		if m := activePolicy.FindStringSubmatch(f); m != nil {
			active = m[1]
			f = m[1]
		}
		policies = append(policies, f)
	}
	return policies, active, nil
}

// SetReadPolicy selects the btrfs read policy. Unknown policies are
// rejected before anything is written.
func (d *Device) SetReadPolicy(ctx context.Context, policy string) error {
	policies, _, err := d.ReadPolicies(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, p := range policies {
		if p == policy {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("read policy %q is invalid, have %v", policy, policies)
	}
	path, err := d.readPolicyPath(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(policy), 0o644); err != nil {
		return fmt.Errorf("set read policy: %w", err)
	}
	return nil
}

func (d *Device) readPolicyPath(ctx context.Context) (string, error) {
	fsid, err := d.FSID(ctx)
	if err != nil {
		return "", err
	}
	return d.sysfs("fs", "btrfs", fsid, "read_policy"), nil
}
