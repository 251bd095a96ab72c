package collect

import (
	"context"
	"errors"

	"github.com/josefbacik/fsperf/internal/metrics"
)

// MountTiming measures an end-state unmount and mount cycle.
type MountTiming struct{}

func (MountTiming) Name() string { return "mount_timing" }

func (MountTiming) Collect(ctx context.Context, target Target) (metrics.SampleGroup, error) {
	group := metrics.SampleGroup{Kind: metrics.KindMountTiming}
	if target.Mount == nil || !target.Mount.Live() {
		return group, errors.New("filesystem is not mounted")
	}
	timing, err := target.Mount.Cycle(ctx)
	if err != nil {
		return group, err
	}
	group.Values = map[string]float64{
		"end_state_umount_ns": float64(timing.Unmount.Nanoseconds()),
		"end_state_mount_ns":  float64(timing.Mount.Nanoseconds()),
	}
	return group, nil
}
