package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/josefbacik/fsperf/internal/device"
	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/runner"
	"github.com/josefbacik/fsperf/internal/workload"
)

const (
	bgScaleArgs = "--name btrfsbgscalability --rw=randwrite --fsync=0 " +
		"--fallocate=posix --group_reporting --direct=1 " +
		"--ioengine=io_uring --iodepth=64 --bs=64k --filesize=1g " +
		"--runtime=300 --time_based --numjobs=8 --thread"
	bgScaleMkfs  = "mkfs.btrfs -f -R free-space-tree -O no-holes"
	bgScaleMount = "mount -o ssd,nodatacow"
)

// BgScalability measures btrfs with a very large block group tree. It
// builds a loop filesystem on top of a memory backed null_blk device and
// preallocates ~3500 data block groups on it before writing.
type BgScalability struct {
	// ConfigFS and SysFS override the null_blk configfs and sysfs roots.
	ConfigFS string
	SysFS    string

	nullblk *device.NullBlk
	// mounted is unmounted in reverse order on teardown.
	mounted []string
}

func (b *BgScalability) Name() string        { return "btrfsbgscalability" }
func (b *BgScalability) Functions() []string { return nil }

func (b *BgScalability) Flags() runner.Flags {
	return runner.Flags{OneOff: true, SkipMkfsAndMount: true}
}

func loopDir(directory string) string {
	return filepath.Join(directory, "loop")
}

func (b *BgScalability) Setup(ctx context.Context, env runner.Env) error {
	nb := device.NewNullBlk("nullb0", map[string]string{
		"submit_queues": "2",
		"size":          "16384",
		"memory_backed": "1",
	}, env.Exec)
	if b.ConfigFS != "" {
		nb.ConfigFS = b.ConfigFS
	}
	if b.SysFS != "" {
		nb.SysFS = b.SysFS
	}
	if err := nb.Start(ctx); err != nil {
		if errors.Is(err, device.ErrNullBlkUnavailable) {
			return runner.NotRun("null_blk support not loaded: %v", err)
		}
		return err
	}
	b.nullblk = nb

	dir := env.Directory
	loop := loopDir(dir)
	loopfile := filepath.Join(dir, "loopfile")

	if err := b.run(ctx, env, fmt.Sprintf("%s %s", bgScaleMkfs, nb.Path())); err != nil {
		return err
	}
	if err := b.mount(ctx, env, nb.Path(), dir); err != nil {
		return err
	}
	if err := os.MkdirAll(loop, 0o755); err != nil {
		return fmt.Errorf("create loop directory: %w", err)
	}
	for _, cmd := range []string{
		"truncate -s 4T " + loopfile,
		fmt.Sprintf("%s %s", bgScaleMkfs, loopfile),
	} {
		if err := b.run(ctx, env, cmd); err != nil {
			return err
		}
	}
	if err := b.mount(ctx, env, loopfile, loop); err != nil {
		return err
	}
	// large enough to allocate the block groups without using real space
	return b.run(ctx, env, "fallocate -l 3500G "+filepath.Join(loop, "filler"))
}

func (b *BgScalability) run(ctx context.Context, env runner.Env, cmd string) error {
	_, err := env.Exec.Run(ctx, cmd)
	return err
}

func (b *BgScalability) mount(ctx context.Context, env runner.Env, source, target string) error {
	if err := b.run(ctx, env, fmt.Sprintf("%s %s %s", bgScaleMount, source, target)); err != nil {
		return err
	}
	b.mounted = append(b.mounted, target)
	return nil
}

func (b *BgScalability) Execute(ctx context.Context, env runner.Env, run *metrics.Run) error {
	w := workload.Fio{Name: "btrfsbgscalability", Args: bgScaleArgs}
	return execute(ctx, w, env, loopDir(env.Directory), run)
}

// Teardown undoes whatever Setup got done.
func (b *BgScalability) Teardown(ctx context.Context, env runner.Env) error {
	var errs []error
	for i := len(b.mounted) - 1; i >= 0; i-- {
		if err := b.run(ctx, env, "umount "+b.mounted[i]); err != nil {
			errs = append(errs, err)
		}
	}
	b.mounted = nil
	if b.nullblk != nil {
		if err := b.nullblk.Stop(); err != nil {
			errs = append(errs, err)
		}
		b.nullblk = nil
	}
	return errors.Join(errs...)
}
