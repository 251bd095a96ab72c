// Package collect gathers auxiliary filesystem and device metrics around a
// workload. Every collector is best effort: a failure produces an empty
// sample group and a warning, never a failed run.
package collect

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/josefbacik/fsperf/internal/command"
	"github.com/josefbacik/fsperf/internal/device"
	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/mount"
)

// Target is what collectors inspect.
type Target struct {
	Device *device.Device
	Mount  *mount.Mount
}

// Collector produces one sample group after the workload.
type Collector interface {
	Name() string
	Collect(ctx context.Context, target Target) (metrics.SampleGroup, error)
}

// Preparer is implemented by collectors that need to observe the state
// before the workload starts.
type Preparer interface {
	Prepare(ctx context.Context, target Target) error
}

// Default returns the standard collector set. The mount timing collector
// cycles the mount and therefore comes last.
func Default(exec command.Executor, fragTool string) []Collector {
	var cs []Collector
	if fragTool != "" {
		cs = append(cs, &Fragmentation{Tool: fragTool, Exec: exec})
	}
	return append(cs,
		&CommitStats{},
		NewIOStats("", ""),
		MountTiming{},
	)
}

// Prepare runs Prepare on every collector that has one. Failures are
// logged and ignored.
func Prepare(ctx context.Context, log logrus.FieldLogger, target Target, collectors ...Collector) {
	for _, c := range collectors {
		p, ok := c.(Preparer)
		if !ok {
			continue
		}
		if err := p.Prepare(ctx, target); err != nil {
			log.WithError(err).WithField("collector", c.Name()).Warn("collector prepare failed")
		}
	}
}

// Run collects from each collector in order. Failures are logged and
// yield an empty group of the collector's kind, which Run drops.
func Run(ctx context.Context, log logrus.FieldLogger, target Target, collectors ...Collector) []metrics.SampleGroup {
	var groups []metrics.SampleGroup
	for _, c := range collectors {
		l := log.WithField("collector", c.Name())
		g, err := c.Collect(ctx, target)
		if err != nil {
			l.WithError(err).Warn("collector failed, recording no samples")
			continue
		}
		if g.Empty() {
			l.Debug("collector produced no samples")
			continue
		}
		groups = append(groups, g)
	}
	return groups
}
