package suite

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/runner"
	"github.com/josefbacik/fsperf/internal/workload"
)

//go:embed jobs/four-sizes.fio
var fourSizesJob []byte

// FourSizes fills the filesystem with files of four size classes and
// traces extent allocation while it does.
type FourSizes struct{}

func (FourSizes) Name() string        { return "foursizes" }
func (FourSizes) Functions() []string { return []string{"find_free_extent"} }
func (FourSizes) Flags() runner.Flags { return runner.Flags{} }

func jobPath(results string) string {
	return filepath.Join(results, "four-sizes.fio")
}

// Setup writes the job file next to the run's results.
func (FourSizes) Setup(_ context.Context, env runner.Env) error {
	if err := os.WriteFile(jobPath(env.Results), fourSizesJob, 0o644); err != nil {
		return fmt.Errorf("write job file: %w", err)
	}
	return nil
}

func (FourSizes) Execute(ctx context.Context, env runner.Env, run *metrics.Run) error {
	w := workload.Fio{Name: "foursizes", Args: jobPath(env.Results)}
	return execute(ctx, w, env, env.Directory, run)
}

func (FourSizes) Teardown(context.Context, runner.Env) error { return nil }
