package collect

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/procfs/blockdevice"

	"github.com/josefbacik/fsperf/internal/metrics"
)

const sectorSize = 512

// IOStats reports the device's I/O counters accumulated between Prepare and
// Collect. Each snapshot serves a single Collect.
type IOStats struct {
	ProcFS string
	SysFS  string

	before *blockdevice.IOStats
}

// NewIOStats reads diskstats from the given proc and sys mounts.
func NewIOStats(procfs, sysfs string) *IOStats {
	if procfs == "" {
		procfs = "/proc"
	}
	if sysfs == "" {
		sysfs = "/sys"
	}
	return &IOStats{ProcFS: procfs, SysFS: sysfs}
}

func (s *IOStats) Name() string { return "io_stats" }

func (s *IOStats) Prepare(_ context.Context, target Target) error {
	s.before = nil
	st, err := s.snapshot(target)
	if err != nil {
		return err
	}
	s.before = &st
	return nil
}

func (s *IOStats) Collect(_ context.Context, target Target) (metrics.SampleGroup, error) {
	group := metrics.SampleGroup{Kind: metrics.KindIOStats}
	if s.before == nil {
		return group, errors.New("no baseline diskstats snapshot")
	}
	before := *s.before
	s.before = nil
	after, err := s.snapshot(target)
	if err != nil {
		return group, err
	}
	group.Values = map[string]float64{
		"dev_read_iops":    float64(delta(after.ReadIOs, before.ReadIOs)),
		"dev_read_kbytes":  float64(delta(after.ReadSectors, before.ReadSectors)*sectorSize) / 1024,
		"dev_write_iops":   float64(delta(after.WriteIOs, before.WriteIOs)),
		"dev_write_kbytes": float64(delta(after.WriteSectors, before.WriteSectors)*sectorSize) / 1024,
	}
	return group, nil
}

func (s *IOStats) snapshot(target Target) (blockdevice.IOStats, error) {
	if target.Device == nil {
		return blockdevice.IOStats{}, errors.New("no device")
	}
	fs, err := blockdevice.NewFS(s.ProcFS, s.SysFS)
	if err != nil {
		return blockdevice.IOStats{}, fmt.Errorf("open diskstats: %w", err)
	}
	stats, err := fs.ProcDiskstats()
	if err != nil {
		return blockdevice.IOStats{}, fmt.Errorf("read diskstats: %w", err)
	}
	name := target.Device.Name()
	for _, d := range stats {
		if d.DeviceName == name {
			return d.IOStats, nil
		}
	}
	return blockdevice.IOStats{}, fmt.Errorf("device %s not in diskstats", name)
}

// delta tolerates counter resets between snapshots.
func delta(after, before uint64) uint64 {
	if after < before {
		return after
	}
	return after - before
}
