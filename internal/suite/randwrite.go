package suite

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/runner"
	"github.com/josefbacik/fsperf/internal/workload"
)

const randWriteArgs = "--name randwrite2xram --direct=0 --ioengine=sync --thread " +
	"--invalidate=1 --group_reporting=1 --runtime=300 " +
	"--fallocate=none --ramp_time=10 --new_group --rw=randwrite " +
	"--size=SIZE --numjobs=4 --bs=4k --fsync_on_close=0 --end_fsync=0"

// RandWriteRAM writes randomly over a file set twice the size of RAM so
// the page cache cannot absorb it.
type RandWriteRAM struct {
	// ProcFS defaults to /proc.
	ProcFS string

	size uint64
}

func (r *RandWriteRAM) Name() string        { return "randwrite-2xram" }
func (r *RandWriteRAM) Functions() []string { return nil }
func (r *RandWriteRAM) Flags() runner.Flags { return runner.Flags{} }

func (r *RandWriteRAM) Setup(context.Context, runner.Env) error {
	total, err := memTotal(r.ProcFS)
	if err != nil {
		return err
	}
	r.size = 2 * total
	return nil
}

func (r *RandWriteRAM) Execute(ctx context.Context, env runner.Env, run *metrics.Run) error {
	if r.size == 0 {
		return errors.New("randwrite-2xram: memory size unknown, setup did not run")
	}
	return execute(ctx, r.workload(), env, env.Directory, run)
}

func (r *RandWriteRAM) Teardown(context.Context, runner.Env) error { return nil }

func (r *RandWriteRAM) workload() workload.Fio {
	return workload.Fio{
		Name: "randwrite2xram",
		Args: strings.Replace(randWriteArgs, "SIZE", strconv.FormatUint(r.size, 10), 1),
	}
}

// memTotal returns the machine's total memory in bytes.
func memTotal(mount string) (uint64, error) {
	if mount == "" {
		mount = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mount)
	if err != nil {
		return 0, fmt.Errorf("open procfs: %w", err)
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read meminfo: %w", err)
	}
	if mi.MemTotal == nil {
		return 0, errors.New("meminfo has no MemTotal")
	}
	return *mi.MemTotal * 1024, nil
}
