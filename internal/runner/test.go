package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/josefbacik/fsperf/internal/command"
	"github.com/josefbacik/fsperf/internal/config"
	"github.com/josefbacik/fsperf/internal/device"
	"github.com/josefbacik/fsperf/internal/metrics"
)

// ErrNotRun marks a test whose environment precondition is unmet. It is
// not a failure: no run is recorded and resources are still released.
var ErrNotRun = errors.New("test not run")

// NotRunError carries the reason a test could not run.
type NotRunError struct {
	Reason string
}

func (e *NotRunError) Error() string {
	return fmt.Sprintf("not run: %s", e.Reason)
}

func (e *NotRunError) Is(target error) bool {
	return target == ErrNotRun
}

// NotRun returns an error that aborts the test without recording it.
func NotRun(format string, args ...any) error {
	return &NotRunError{Reason: fmt.Sprintf(format, args...)}
}

// IsNotRun reports whether err signals an unmet precondition.
func IsNotRun(err error) bool {
	return errors.Is(err, ErrNotRun)
}

// Flags alter how the runner drives a test.
type Flags struct {
	// OneOff tests only run when explicitly requested.
	OneOff bool
	// SkipMkfsAndMount tests manage their own device; the runner neither
	// formats nor mounts, and auxiliary collectors are skipped.
	SkipMkfsAndMount bool
	// NeedsRemountAfterSetup forces an unmount and mount between setup
	// and the workload.
	NeedsRemountAfterSetup bool
}

// Env is what a test's hooks get to work with.
type Env struct {
	Section config.Section
	// Directory is the mount point the workload runs in.
	Directory string
	// Results is the per-run directory for raw workload output.
	Results string
	Exec    command.Executor
	Device  *device.Device
	Log     logrus.FieldLogger
}

// Test is one benchmark. The runner owns device preparation, mounting,
// tracing, collection and recording; a test only supplies its hooks.
type Test interface {
	Name() string
	// Functions are the kernel functions traced during Execute.
	Functions() []string
	Flags() Flags
	Setup(ctx context.Context, env Env) error
	// Execute runs the workload and adds its samples to run.
	Execute(ctx context.Context, env Env, run *metrics.Run) error
	Teardown(ctx context.Context, env Env) error
}
