package workload

import (
	"context"
	"strings"
	"time"

	"github.com/josefbacik/fsperf/internal/metrics"
)

// DirectoryPlaceholder is replaced with the test directory in Timed commands.
const DirectoryPlaceholder = "DIRECTORY"

// Timed runs a command and records its wall clock time in seconds.
type Timed struct {
	Command string
}

func (t Timed) Run(ctx context.Context, p Params) ([]metrics.SampleGroup, error) {
	cmd := strings.ReplaceAll(t.Command, DirectoryPlaceholder, p.Directory)
	start := time.Now()
	if _, err := p.Exec.Run(ctx, cmd); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	return []metrics.SampleGroup{{
		Kind:   metrics.KindTime,
		Values: map[string]float64{"elapsed": elapsed.Seconds()},
	}}, nil
}
