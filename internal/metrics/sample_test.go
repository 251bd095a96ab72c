package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFlattenKeysLatencyByFunction(t *testing.T) {
	run := NewRun("foursizes", "btrfs", "continuous")
	run.Add(
		SampleGroup{Kind: KindFio, Values: map[string]float64{"write_bw_bytes": 1024}},
		SampleGroup{Kind: KindLatency, Function: "find_free_extent", Values: map[string]float64{"ns_p50": 12, "calls": 3}},
		SampleGroup{Kind: KindCommitStats},
	)

	require.Len(t, run.Groups, 2, "empty groups are dropped")
	flat := run.Flatten()
	assert.Equal(t, 1024.0, flat["write_bw_bytes"])
	assert.Equal(t, 12.0, flat["find_free_extent_ns_p50"])
	assert.Equal(t, 3.0, flat["find_free_extent_calls"])
	assert.Equal(t, []string{"find_free_extent_calls", "find_free_extent_ns_p50", "write_bw_bytes"}, run.MetricNames())
	assert.Len(t, run.GroupsOf(KindLatency), 1)
}

func TestNewRunStampsIdentity(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	run := NewRun("dbench60", "xfs", "ab-test")

	assert.Equal(t, "dbench60", run.Name)
	assert.Equal(t, "xfs", run.Config)
	assert.Equal(t, "ab-test", run.Purpose)
	assert.Len(t, run.ULID, 26)
	assert.NotEmpty(t, run.Kernel)
	assert.True(t, run.Time.After(before))
}

func TestRecorderWritesTextfile(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveRun("dbench60", OutcomePassed, 3*time.Second)
	rec.ObserveRun("dbench60", OutcomeFailed, time.Second)
	rec.ProbeFailed("btrfs_commit_transaction")
	rec.Regressed("dbench60", "throughput")

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("dbench60", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.probeFailures.WithLabelValues("btrfs_commit_transaction")))

	path := filepath.Join(t.TempDir(), "fsperf.prom")
	require.NoError(t, rec.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `fsperf_regressions_total{metric="throughput",test="dbench60"} 1`))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.ObserveRun("x", OutcomePassed, time.Second)
	rec.ProbeFailed("x")
	rec.Regressed("x", "y")
	assert.NoError(t, rec.WriteTextfile("/nonexistent/path"))
}
