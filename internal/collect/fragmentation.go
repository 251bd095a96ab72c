package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/josefbacik/fsperf/internal/command"
	"github.com/josefbacik/fsperf/internal/metrics"
)

// fragmentationKeys are the fields the frag tool reports.
var fragmentationKeys = []string{
	"bg_count",
	"fragmented_bg_count",
	"frag_pct_mean",
	"frag_pct_min",
	"frag_pct_p50",
	"frag_pct_p95",
	"frag_pct_p99",
	"frag_pct_max",
}

// Fragmentation runs a block group fragmentation tool against the device
// and parses the JSON summary it prints last.
type Fragmentation struct {
	Tool string
	Exec command.Executor
}

func (f *Fragmentation) Name() string { return "fragmentation" }

func (f *Fragmentation) Collect(ctx context.Context, target Target) (metrics.SampleGroup, error) {
	group := metrics.SampleGroup{Kind: metrics.KindFragmentation}
	if target.Device == nil {
		return group, errors.New("no device")
	}
	out, err := f.Exec.Run(ctx, f.Tool+" "+target.Device.Path)
	if err != nil {
		return group, err
	}
	values, err := ParseFragmentation(out)
	if err != nil {
		return group, err
	}
	group.Values = values
	return group, nil
}

// ParseFragmentation extracts the summary from the last JSON line of the
// tool's output. Missing keys are recorded as zero.
func ParseFragmentation(out string) (map[string]float64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var summary gjson.Result
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if gjson.Valid(line) && strings.HasPrefix(line, "{") {
			summary = gjson.Parse(line)
			break
		}
	}
	if !summary.Exists() {
		return nil, fmt.Errorf("no fragmentation summary in output")
	}
	values := make(map[string]float64, len(fragmentationKeys))
	for _, k := range fragmentationKeys {
		values[k] = summary.Get(k).Float()
	}
	return values, nil
}
