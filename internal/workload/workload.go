// Package workload runs the benchmark programs a test is built on and turns
// their output into sample groups.
package workload

import (
	"context"

	"github.com/josefbacik/fsperf/internal/command"
	"github.com/josefbacik/fsperf/internal/metrics"
)

// Params locates a workload run.
type Params struct {
	Exec command.Executor
	// Directory is where the workload does its I/O.
	Directory string
	// Results is the per-run directory for raw output files.
	Results string
}

// Workload is one benchmark program invocation.
type Workload interface {
	Run(ctx context.Context, p Params) ([]metrics.SampleGroup, error)
}
