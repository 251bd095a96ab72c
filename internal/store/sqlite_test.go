package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josefbacik/fsperf/internal/metrics"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "fsperf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(name, purpose string, at time.Time, elapsed float64) *metrics.Run {
	r := metrics.NewRun(name, "btrfs", purpose)
	r.Time = at
	r.Add(
		metrics.SampleGroup{Kind: metrics.KindTime, Values: map[string]float64{"elapsed": elapsed}},
		metrics.SampleGroup{Kind: metrics.KindLatency, Function: "find_free_extent", Values: map[string]float64{"ns_p50": 2, "calls": 5}},
	)
	return r
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run := newRun("untarfirefox", "continuous", at, 12.5)
	require.NoError(t, s.Append(ctx, run))
	assert.NotZero(t, run.ID)

	got, err := s.Query(ctx, Filter{Name: "untarfirefox", Config: "btrfs", Purpose: "continuous"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, run.ID, got[0].ID)
	assert.Equal(t, run.ULID, got[0].ULID)
	assert.True(t, at.Equal(got[0].Time))
	assert.Equal(t, run.Flatten(), got[0].Flatten())
	require.Len(t, got[0].GroupsOf(metrics.KindLatency), 1)
	assert.Equal(t, "find_free_extent", got[0].GroupsOf(metrics.KindLatency)[0].Function)
}

func TestQueryFiltersAndOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, newRun("dbench60", "continuous", base.Add(time.Duration(i)*24*time.Hour), float64(i))))
	}
	require.NoError(t, s.Append(ctx, newRun("dbench60", "ab-test", base, 9)))
	require.NoError(t, s.Append(ctx, newRun("smallfiles100k", "continuous", base, 9)))
	failed := newRun("dbench60", "continuous", base.Add(72*time.Hour), 99)
	failed.Failed = true
	require.NoError(t, s.Append(ctx, failed))

	got, err := s.Query(ctx, Filter{Name: "dbench60", Purpose: "continuous", Since: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Less(t, got[0].ID, got[1].ID)
	assert.Equal(t, 1.0, got[0].Flatten()["elapsed"])

	withFailed, err := s.Query(ctx, Filter{Name: "dbench60", Purpose: "continuous", IncludeFailed: true})
	require.NoError(t, err)
	require.Len(t, withFailed, 4)
	assert.True(t, withFailed[3].Failed)

	all, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestDeleteByPurposeCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Append(ctx, newRun("dbench60", "ab-test", now, 1)))
	require.NoError(t, s.Append(ctx, newRun("dbench60", "scratch", now, 1)))
	require.NoError(t, s.Append(ctx, newRun("dbench60", "continuous", now, 1)))

	n, err := s.DeleteByPurpose(ctx, "ab-test", "scratch")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var orphans int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM samples WHERE run_id NOT IN (SELECT id FROM runs)`).Scan(&orphans))
	assert.Zero(t, orphans)

	left, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "continuous", left[0].Purpose)

	n, err = s.DeleteByPurpose(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenInMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Append(context.Background(), newRun("x", "p", time.Now(), 1)))
	got, err := s.Query(context.Background(), Filter{Name: "x"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAppendNilRun(t *testing.T) {
	assert.Error(t, openTestStore(t).Append(context.Background(), nil))
}
