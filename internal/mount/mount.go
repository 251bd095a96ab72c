// Package mount provides scoped ownership of a mounted filesystem.
//
// Acquire mounts the device and hands back the live handle together with
// the release function that must run on scope exit:
//
//	m, release, err := mount.Acquire(ctx, exec, spec, log)
//	if err != nil {
//		return err
//	}
//	defer func() { err = errors.Join(err, release()) }()
//
// The live flag is the single source of truth for whether an unmount is
// still owed, so normal exit, error paths and forced remounts never
// unmount twice.
package mount

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/josefbacik/fsperf/internal/command"
)

// Spec describes what to mount where. Command is the mount command
// template; the device and target are appended to it.
type Spec struct {
	Command string
	Device  string
	Target  string
}

func (s Spec) validate() error {
	var missing []string
	if strings.TrimSpace(s.Command) == "" {
		missing = append(missing, "mount command")
	}
	if strings.TrimSpace(s.Device) == "" {
		missing = append(missing, "device")
	}
	if strings.TrimSpace(s.Target) == "" {
		missing = append(missing, "target")
	}
	if len(missing) > 0 {
		return fmt.Errorf("mount spec missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Timing reports how long each half of a remount cycle took.
type Timing struct {
	Unmount time.Duration
	Mount   time.Duration
}

// Release unmounts on scope exit. It performs at most one unmount attempt
// and returns that attempt's error on every call.
type Release func() error

// Mount is a live mounted filesystem owned by the current run.
type Mount struct {
	exec command.Executor
	spec Spec
	log  logrus.FieldLogger

	mu   sync.Mutex
	live bool
}

// Acquire runs the mount command and returns the live mount and its release
// function. On error nothing is mounted and no release is needed.
func Acquire(ctx context.Context, exec command.Executor, spec Spec, log logrus.FieldLogger) (*Mount, Release, error) {
	if err := spec.validate(); err != nil {
		return nil, nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Mount{
		exec: exec,
		spec: spec,
		log: log.WithFields(logrus.Fields{
			"component": "mount",
			"device":    spec.Device,
			"target":    spec.Target,
		}),
	}
	if err := m.mount(ctx); err != nil {
		return nil, nil, err
	}

	// Release must still work after the caller's context is cancelled.
	releaseCtx := context.WithoutCancel(ctx)
	var (
		once       sync.Once
		releaseErr error
	)
	release := func() error {
		once.Do(func() {
			releaseErr = m.Unmount(releaseCtx)
		})
		return releaseErr
	}
	return m, release, nil
}

// Spec returns what this mount was acquired with.
func (m *Mount) Spec() Spec {
	return m.spec
}

// Live reports whether the filesystem is currently mounted by this handle.
func (m *Mount) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Unmount unmounts the filesystem. It is a no-op when not live. A failed
// unmount leaves the handle live.
func (m *Mount) Unmount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unmountLocked(ctx)
}

// Cycle forces an unmount followed by a mount and reports both durations.
func (m *Mount) Cycle(ctx context.Context) (Timing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var timing Timing
	start := time.Now()
	if err := m.unmountLocked(ctx); err != nil {
		return timing, fmt.Errorf("cycle mount: %w", err)
	}
	timing.Unmount = time.Since(start)

	start = time.Now()
	if err := m.mountLocked(ctx); err != nil {
		return timing, fmt.Errorf("cycle mount: %w", err)
	}
	timing.Mount = time.Since(start)
	m.log.WithFields(logrus.Fields{
		"umount_ns": timing.Unmount.Nanoseconds(),
		"mount_ns":  timing.Mount.Nanoseconds(),
	}).Debug("cycled mount")
	return timing, nil
}

func (m *Mount) mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mountLocked(ctx)
}

func (m *Mount) mountLocked(ctx context.Context) error {
	if m.live {
		return nil
	}
	cmd := fmt.Sprintf("%s %s %s", m.spec.Command, m.spec.Device, m.spec.Target)
	if _, err := m.exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("mount %s: %w", m.spec.Device, err)
	}
	m.live = true
	m.log.Info("mounted")
	return nil
}

func (m *Mount) unmountLocked(ctx context.Context) error {
	if !m.live {
		return nil
	}
	if _, err := m.exec.Run(ctx, "umount "+m.spec.Target); err != nil {
		return fmt.Errorf("unmount %s: %w", m.spec.Target, err)
	}
	m.live = false
	m.log.Info("unmounted")
	return nil
}
