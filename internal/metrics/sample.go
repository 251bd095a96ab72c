package metrics

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies which part of the run lifecycle produced a SampleGroup.
type Kind string

const (
	KindFio           Kind = "fio"
	KindTime          Kind = "time"
	KindDbench        Kind = "dbench"
	KindFragmentation Kind = "fragmentation"
	KindLatency       Kind = "latency"
	KindCommitStats   Kind = "commit_stats"
	KindMountTiming   Kind = "mount_timing"
	KindIOStats       Kind = "io_stats"
)

// Kinds lists every known sample kind in display order.
var Kinds = []Kind{
	KindFio,
	KindTime,
	KindDbench,
	KindFragmentation,
	KindLatency,
	KindCommitStats,
	KindMountTiming,
	KindIOStats,
}

// SampleGroup is one set of numeric samples produced by a single source.
type SampleGroup struct {
	Kind     Kind               `json:"kind" yaml:"kind"`
	Function string             `json:"function,omitempty" yaml:"function,omitempty"`
	Values   map[string]float64 `json:"values" yaml:"values"`
}

// Empty reports whether the group carries no samples.
func (g SampleGroup) Empty() bool {
	return len(g.Values) == 0
}

// MetricName returns the flattened name of stat within this group.
func (g SampleGroup) MetricName(stat string) string {
	if g.Function == "" {
		return stat
	}
	return g.Function + "_" + stat
}

// Run is one benchmark execution and the samples it produced.
type Run struct {
	ID       int64         `json:"id" yaml:"id"`
	ULID     string        `json:"ulid" yaml:"ulid"`
	Kernel   string        `json:"kernel" yaml:"kernel"`
	Hostname string        `json:"hostname" yaml:"hostname"`
	Config   string        `json:"config" yaml:"config"`
	Name     string        `json:"name" yaml:"name"`
	Purpose  string        `json:"purpose" yaml:"purpose"`
	Time     time.Time     `json:"time" yaml:"time"`
	Failed   bool          `json:"failed" yaml:"failed"`
	Groups   []SampleGroup `json:"groups" yaml:"groups"`
}

// NewRun creates a Run stamped with the current time, a fresh ULID, the
// running kernel release and the local hostname.
func NewRun(name, config, purpose string) *Run {
	now := time.Now().UTC()
	host, _ := os.Hostname()
	return &Run{
		ULID:     ulid.Make().String(),
		Kernel:   KernelRelease(),
		Hostname: host,
		Config:   config,
		Name:     name,
		Purpose:  purpose,
		Time:     now,
	}
}

// Add attaches a group to the run. Empty groups are dropped.
func (r *Run) Add(groups ...SampleGroup) {
	for _, g := range groups {
		if g.Empty() {
			continue
		}
		r.Groups = append(r.Groups, g)
	}
}

// GroupsOf returns the groups of the given kind, in insertion order.
func (r *Run) GroupsOf(kind Kind) []SampleGroup {
	var out []SampleGroup
	for _, g := range r.Groups {
		if g.Kind == kind {
			out = append(out, g)
		}
	}
	return out
}

// Flatten merges every group into a single metric map. Later groups win on
// name collisions.
func (r *Run) Flatten() map[string]float64 {
	flat := make(map[string]float64)
	for _, g := range r.Groups {
		for stat, v := range g.Values {
			flat[g.MetricName(stat)] = v
		}
	}
	return flat
}

// MetricNames returns the sorted flattened metric names of the run.
func (r *Run) MetricNames() []string {
	flat := r.Flatten()
	names := make([]string, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KernelRelease reads the running kernel release, or "unknown".
func KernelRelease() string {
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return "unknown"
	}
	release := strings.TrimSpace(string(data))
	if release == "" {
		return "unknown"
	}
	return release
}
