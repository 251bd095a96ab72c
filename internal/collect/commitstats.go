package collect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/josefbacik/fsperf/internal/device"
	"github.com/josefbacik/fsperf/internal/metrics"
)

// CommitStats reads btrfs transaction commit statistics from sysfs. Prepare
// resets the counters so the sample covers only the workload.
type CommitStats struct {
	SysFS string
}

func (c *CommitStats) Name() string { return "commit_stats" }

func (c *CommitStats) path(ctx context.Context, target Target) (string, error) {
	if target.Device == nil {
		return "", errors.New("no device")
	}
	fsid, err := target.Device.FSID(ctx)
	if err != nil {
		return "", err
	}
	root := c.SysFS
	if root == "" {
		root = device.DefaultSysFS
	}
	return filepath.Join(root, "fs", "btrfs", fsid, "commit_stats"), nil
}

func (c *CommitStats) Prepare(ctx context.Context, target Target) error {
	path, err := c.path(ctx, target)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		return fmt.Errorf("reset commit stats: %w", err)
	}
	return nil
}

func (c *CommitStats) Collect(ctx context.Context, target Target) (metrics.SampleGroup, error) {
	group := metrics.SampleGroup{Kind: metrics.KindCommitStats}
	path, err := c.path(ctx, target)
	if err != nil {
		return group, err
	}
	f, err := os.Open(path)
	if err != nil {
		return group, fmt.Errorf("commit stats: %w", err)
	}
	defer f.Close()

	raw := make(map[string]float64)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		raw[fields[0]] = v
	}
	if err := sc.Err(); err != nil {
		return group, fmt.Errorf("commit stats: %w", err)
	}
	commits, ok := raw["commits"]
	if !ok {
		return group, fmt.Errorf("commit stats: no commits field in %s", path)
	}

	group.Values = map[string]float64{
		"commits":       commits,
		"max_commit_ms": raw["max_commit_ms"],
		"avg_commit_ms": 0,
	}
	if commits > 0 {
		group.Values["avg_commit_ms"] = raw["total_commit_ms"] / commits
	}
	return group, nil
}
