// Package suite is the static catalogue of benchmark tests.
package suite

import (
	"context"

	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/runner"
	"github.com/josefbacik/fsperf/internal/workload"
)

// Default returns every known test in run order.
func Default() []runner.Test {
	return []runner.Test{
		fio("diorandread", "--name diorandread --direct=1 --size=1g --rw=randread "+
			"--runtime=60 --iodepth=1024 --nrfiles=16 --numjobs=16 --group_reporting"),
		fio("emptyfiles500k", "--name emptyfiles500k --create_on_open=1 --nrfiles=31250 "+
			"--readwrite=write --ioengine=filecreate --fallocate=none --filesize=4k --openfiles=1"),
		fio("smallfiles100k", "--name=smallfiles100k --nrfiles=100000 --blocksize_unaligned=1 "+
			"--filesize=10:1m --readwrite=write --fallocate=none --numjobs=4 "+
			"--create_on_open=1 --group_reporting=1 --openfiles=500"),
		fio("dio-4kbs-16threads", "--name dio4kbs16threads --direct=1 --size=1g --rw=randwrite "+
			"--norandommap --runtime=60 --iodepth=1024 --nrfiles=16 "+
			"--allrandrepeat=1 --numjobs=16 --group_reporting"),
		&RandWriteRAM{},
		&UntarFirefox{},
		&Basic{
			TestName: "dbench60",
			Workload: workload.Dbench{Name: "dbench60", Args: "-t 60 16"},
		},
		&BgScalability{},
		&FourSizes{},
	}
}

// Find returns the test called name.
func Find(tests []runner.Test, name string) (runner.Test, bool) {
	for _, t := range tests {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

func fio(name, args string) *Basic {
	return &Basic{TestName: name, Workload: workload.Fio{Name: name, Args: args}}
}

// Basic is a test that only runs its workload in the mounted directory.
type Basic struct {
	TestName string
	Trace    []string
	Options  runner.Flags
	Workload workload.Workload
}

func (b *Basic) Name() string        { return b.TestName }
func (b *Basic) Functions() []string { return b.Trace }
func (b *Basic) Flags() runner.Flags { return b.Options }

func (b *Basic) Setup(context.Context, runner.Env) error    { return nil }
func (b *Basic) Teardown(context.Context, runner.Env) error { return nil }

func (b *Basic) Execute(ctx context.Context, env runner.Env, run *metrics.Run) error {
	return execute(ctx, b.Workload, env, env.Directory, run)
}

func execute(ctx context.Context, w workload.Workload, env runner.Env, dir string, run *metrics.Run) error {
	groups, err := w.Run(ctx, workload.Params{
		Exec:      env.Exec,
		Directory: dir,
		Results:   env.Results,
	})
	if err != nil {
		return err
	}
	run.Add(groups...)
	return nil
}
