package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josefbacik/fsperf/internal/metrics"
)

func TestDirectionOf(t *testing.T) {
	d := DefaultDirections()
	tests := []struct {
		name string
		want Direction
	}{
		{"read_bw_bytes", HigherIsBetter},
		{"elapsed", LowerIsBetter},
		{"throughput", HigherIsBetter},
		{"flush", LowerIsBetter},
		{"dev_write_kbytes", HigherIsBetter},
		{"trim_iops", HigherIsBetter},
		{"find_free_extent_calls", LowerIsBetter},
		{"find_free_extent_ns_p99", LowerIsBetter},
		{"frag_pct_mean", LowerIsBetter},
		{"bg_count", LowerIsBetter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Of(tt.name))
			assert.Equal(t, tt.want, d.Of(tt.name), "deterministic")
		})
	}
}

func TestDirectionsOverridesAreImmutable(t *testing.T) {
	src := map[string]Direction{"elapsed": HigherIsBetter}
	d := NewDirections(src)
	src["elapsed"] = LowerIsBetter
	assert.Equal(t, HigherIsBetter, d.Of("elapsed"))

	extended := d.With(map[string]Direction{"bg_count": HigherIsBetter})
	assert.Equal(t, HigherIsBetter, extended.Of("bg_count"))
	assert.Equal(t, LowerIsBetter, d.Of("bg_count"))
}

func TestZeroDirectionsUseHeuristics(t *testing.T) {
	var d Directions
	assert.Equal(t, HigherIsBetter, d.Of("read_io_bytes"))
	assert.Equal(t, LowerIsBetter, d.Of("throughput"))
}

func TestEngineDirections(t *testing.T) {
	assert.Equal(t, HigherIsBetter, New(Options{}).Direction("throughput"), "zero value uses the default overrides")
	assert.Equal(t, LowerIsBetter, New(Options{Directions: NewDirections(nil)}).Direction("throughput"), "empty overrides use heuristics only")
}

func TestParseDirection(t *testing.T) {
	d, ok := ParseDirection("Higher-is-better")
	assert.True(t, ok)
	assert.Equal(t, HigherIsBetter, d)
	_, ok = ParseDirection("sideways")
	assert.False(t, ok)
}

func TestDirectionTextRoundTrip(t *testing.T) {
	for _, d := range []Direction{HigherIsBetter, LowerIsBetter} {
		text, err := d.MarshalText()
		require.NoError(t, err)
		var got Direction
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, d, got)
	}
	var d Direction
	assert.Error(t, d.UnmarshalText([]byte("sideways")))
}

func TestRegressionThreshold(t *testing.T) {
	e := New(Options{})
	b := Baseline{Summary: Summary{Mean: 100, Stdev: 5, N: 10}}

	assert.InDelta(t, 90.2, e.Threshold("read_bw_bytes", b), 1e-9)
	assert.True(t, e.Regressed("read_bw_bytes", b, 90))
	assert.False(t, e.Regressed("read_bw_bytes", b, 95))

	assert.InDelta(t, 109.8, e.Threshold("elapsed", b), 1e-9)
	assert.True(t, e.Regressed("elapsed", b, 110))
	assert.False(t, e.Regressed("elapsed", b, 105))
}

func TestAverageSingleSample(t *testing.T) {
	e := New(Options{})
	got := e.AverageSamples([]map[string]float64{{"elapsed": 42}})
	require.Contains(t, got, "elapsed")
	assert.Equal(t, 42.0, got["elapsed"].Mean)
	assert.Equal(t, 0.0, got["elapsed"].Stdev)
	assert.Equal(t, 1, got["elapsed"].N)
}

func TestAverageSampleStdev(t *testing.T) {
	e := New(Options{})
	got := e.AverageSamples([]map[string]float64{
		{"elapsed": 2}, {"elapsed": 4}, {"elapsed": 4}, {"elapsed": 4},
		{"elapsed": 5}, {"elapsed": 5}, {"elapsed": 7}, {"elapsed": 9},
	})
	assert.InDelta(t, 5.0, got["elapsed"].Mean, 1e-12)
	assert.InDelta(t, 2.138089935299395, got["elapsed"].Stdev, 1e-12)
}

func outlierSamples() []map[string]float64 {
	samples := make([]map[string]float64, 0, 21)
	for i := 0; i < 20; i++ {
		samples = append(samples, map[string]float64{"throughput": 100 + float64(i%3)})
	}
	return append(samples, map[string]float64{"throughput": 1000})
}

func TestAverageKeepsRawAuthoritative(t *testing.T) {
	e := New(Options{})
	got := e.AverageSamples(outlierSamples())["throughput"]

	assert.Equal(t, 21, got.N)
	assert.Equal(t, got.Raw, got.Summary)
	assert.Equal(t, 20, got.Filtered.N)
	assert.Less(t, got.Filtered.Mean, got.Raw.Mean)
	assert.Less(t, got.Filtered.Stdev, got.Raw.Stdev)
}

func TestAverageUseFiltered(t *testing.T) {
	e := New(Options{UseFiltered: true})
	got := e.AverageSamples(outlierSamples())["throughput"]
	assert.Equal(t, got.Filtered, got.Summary)
	assert.Equal(t, 20, got.N)
}

func TestAverageSkipsFailedRuns(t *testing.T) {
	ok := &metrics.Run{Groups: []metrics.SampleGroup{{Kind: metrics.KindTime, Values: map[string]float64{"elapsed": 10}}}}
	failed := &metrics.Run{Failed: true, Groups: []metrics.SampleGroup{{Kind: metrics.KindTime, Values: map[string]float64{"elapsed": 99}}}}

	got := New(Options{}).Average([]*metrics.Run{ok, failed, nil})
	assert.Equal(t, 10.0, got["elapsed"].Mean)
	assert.Equal(t, 1, got["elapsed"].N)
}

func TestCheckHeadlineVerdict(t *testing.T) {
	e := New(Options{})
	baseline := map[string]Baseline{
		"write_bw_bytes":   {Summary: Summary{Mean: 100, Stdev: 5}},
		"elapsed":          {Summary: Summary{Mean: 60, Stdev: 1}},
		"write_lat_ns_max": {Summary: Summary{Mean: 10, Stdev: 1}},
		"missing":          {Summary: Summary{Mean: 1}},
	}

	tv := e.Check(baseline, map[string]float64{
		"write_bw_bytes":   95,
		"elapsed":          60,
		"write_lat_ns_max": 50,
	})
	require.Len(t, tv.Metrics, 3)
	assert.Equal(t, []string{"write_lat_ns_max"}, tv.RegressedMetrics())
	assert.Equal(t, 0, tv.HeadlineRegressions)
	assert.Equal(t, 1.0, tv.FailThreshold)
	assert.False(t, tv.Regressed, "non-headline regressions do not fail the test")

	tv = e.Check(baseline, map[string]float64{"write_bw_bytes": 80, "elapsed": 60})
	assert.Equal(t, 1, tv.HeadlineRegressions)
	assert.True(t, tv.Regressed)
}

func TestCheckFailThresholdScales(t *testing.T) {
	e := New(Options{})
	baseline := make(map[string]Baseline)
	candidate := make(map[string]float64)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p", "q", "r"} {
		baseline[name] = Baseline{Summary: Summary{Mean: 1}}
		candidate[name] = 1
	}
	baseline["elapsed"] = Baseline{Summary: Summary{Mean: 10, Stdev: 1}}
	baseline["throughput"] = Baseline{Summary: Summary{Mean: 10, Stdev: 1}}
	candidate["elapsed"] = 20
	candidate["throughput"] = 10

	tv := e.Check(baseline, candidate)
	assert.Len(t, tv.Metrics, 20)
	assert.Equal(t, 2.0, tv.FailThreshold)
	assert.Equal(t, 1, tv.HeadlineRegressions)
	assert.False(t, tv.Regressed)

	candidate["throughput"] = 1
	tv = e.Check(baseline, candidate)
	assert.Equal(t, 2, tv.HeadlineRegressions)
	assert.True(t, tv.Regressed)
}

func TestCompare(t *testing.T) {
	e := New(Options{})
	a := map[string]Baseline{
		"read_bw_bytes": {Summary: Summary{Mean: 100, Stdev: 5}},
		"elapsed":       {Summary: Summary{Mean: 50, Stdev: 1}},
		"zero":          {Summary: Summary{Mean: 0}},
		"only_a":        {Summary: Summary{Mean: 3}},
	}
	b := map[string]Baseline{
		"read_bw_bytes": {Summary: Summary{Mean: 80}},
		"elapsed":       {Summary: Summary{Mean: 45}},
		"zero":          {Summary: Summary{Mean: 9}},
	}

	rows := e.Compare(a, b)
	require.Len(t, rows, 2)
	assert.Equal(t, "elapsed", rows[0].Metric)
	assert.InDelta(t, -10.0, rows[0].Diff, 1e-9)
	assert.False(t, rows[0].Regressed)
	assert.Equal(t, "read_bw_bytes", rows[1].Metric)
	assert.InDelta(t, -20.0, rows[1].Diff, 1e-9)
	assert.True(t, rows[1].Regressed)
	assert.Equal(t, 5.0, rows[1].Stdev)
}

func TestPctDiff(t *testing.T) {
	assert.Equal(t, 0.0, PctDiff(0, 10))
	assert.InDelta(t, 50.0, PctDiff(10, 15), 1e-12)
}
