package stats

import (
	"math"
	"sort"
)

const (
	// DefaultZ is the two-sided 95% confidence multiplier.
	DefaultZ = 1.96
	// DefaultOutlierZ is the z-score beyond which a sample is an outlier.
	DefaultOutlierZ = 3.0
	// failFraction of compared metrics must regress among headline
	// metrics for the whole test to regress.
	failFraction = 0.10
)

// DefaultHeadline are the metrics whose regression can fail a test.
var DefaultHeadline = []string{"read_bw_bytes", "write_bw_bytes", "throughput", "elapsed"}

// Options configures an Engine.
type Options struct {
	// Directions defaults to DefaultDirections when left as the zero value.
	// Pass NewDirections(nil) for name heuristics only.
	Directions Directions
	// Headline defaults to DefaultHeadline.
	Headline []string
	// Z defaults to DefaultZ.
	Z float64
	// OutlierZ defaults to DefaultOutlierZ.
	OutlierZ float64
	// UseFiltered makes the outlier-filtered view authoritative.
	UseFiltered bool
}

// Engine computes baselines and verdicts.
type Engine struct {
	opts     Options
	headline map[string]bool
}

// New returns an Engine with defaults applied.
func New(opts Options) *Engine {
	if opts.Directions.overrides == nil {
		opts.Directions = DefaultDirections()
	}
	if len(opts.Headline) == 0 {
		opts.Headline = DefaultHeadline
	}
	if opts.Z <= 0 {
		opts.Z = DefaultZ
	}
	if opts.OutlierZ <= 0 {
		opts.OutlierZ = DefaultOutlierZ
	}
	headline := make(map[string]bool, len(opts.Headline))
	for _, h := range opts.Headline {
		headline[h] = true
	}
	return &Engine{opts: opts, headline: headline}
}

// Direction returns the direction of metric name.
func (e *Engine) Direction(name string) Direction {
	return e.opts.Directions.Of(name)
}

// Threshold returns the value beyond which a candidate regresses.
func (e *Engine) Threshold(name string, b Baseline) float64 {
	if e.Direction(name) == HigherIsBetter {
		return b.Mean - e.opts.Z*b.Stdev
	}
	return b.Mean + e.opts.Z*b.Stdev
}

// Regressed reports whether value is on the bad side of the threshold.
func (e *Engine) Regressed(name string, b Baseline, value float64) bool {
	th := e.Threshold(name, b)
	if e.Direction(name) == HigherIsBetter {
		return value < th
	}
	return value > th
}

// Verdict is the regression decision for one metric.
type Verdict struct {
	Metric    string    `json:"metric" yaml:"metric"`
	Direction Direction `json:"direction" yaml:"direction"`
	Baseline  Baseline  `json:"baseline" yaml:"baseline"`
	Value     float64   `json:"value" yaml:"value"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Headline  bool      `json:"headline" yaml:"headline"`
	Regressed bool      `json:"regressed" yaml:"regressed"`
}

// TestVerdict is the decision for a whole run.
type TestVerdict struct {
	Metrics             []Verdict `json:"metrics" yaml:"metrics"`
	HeadlineRegressions int       `json:"headline_regressions" yaml:"headline_regressions"`
	FailThreshold       float64   `json:"fail_threshold" yaml:"fail_threshold"`
	Regressed           bool      `json:"regressed" yaml:"regressed"`
}

// RegressedMetrics lists every regressed metric, headline or not.
func (v TestVerdict) RegressedMetrics() []string {
	var out []string
	for _, m := range v.Metrics {
		if m.Regressed {
			out = append(out, m.Metric)
		}
	}
	return out
}

// Check compares a candidate's flattened metrics against baselines.
// Metrics missing from the candidate are not compared.
func (e *Engine) Check(baseline map[string]Baseline, candidate map[string]float64) TestVerdict {
	names := make([]string, 0, len(baseline))
	for name := range baseline {
		if _, ok := candidate[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var tv TestVerdict
	for _, name := range names {
		b := baseline[name]
		v := Verdict{
			Metric:    name,
			Direction: e.Direction(name),
			Baseline:  b,
			Value:     candidate[name],
			Threshold: e.Threshold(name, b),
			Headline:  e.headline[name],
		}
		v.Regressed = e.Regressed(name, b, v.Value)
		if v.Regressed && v.Headline {
			tv.HeadlineRegressions++
		}
		tv.Metrics = append(tv.Metrics, v)
	}
	tv.FailThreshold = math.Max(1, failFraction*float64(len(tv.Metrics)))
	tv.Regressed = float64(tv.HeadlineRegressions) >= tv.FailThreshold
	return tv
}

// Row is one line of an A/B comparison.
type Row struct {
	Metric    string    `json:"metric" yaml:"metric"`
	Direction Direction `json:"direction" yaml:"direction"`
	Baseline  float64   `json:"baseline" yaml:"baseline"`
	Current   float64   `json:"current" yaml:"current"`
	Stdev     float64   `json:"stdev" yaml:"stdev"`
	Diff      float64   `json:"diff_pct" yaml:"diff_pct"`
	Regressed bool      `json:"regressed" yaml:"regressed"`
}

// Compare lines up two sets of baselines. Metrics with a zero baseline mean
// or missing from current are skipped.
func (e *Engine) Compare(baseline, current map[string]Baseline) []Row {
	names := make([]string, 0, len(baseline))
	for name, b := range baseline {
		if b.Mean == 0 {
			continue
		}
		if _, ok := current[name]; !ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]Row, 0, len(names))
	for _, name := range names {
		b, c := baseline[name], current[name]
		rows = append(rows, Row{
			Metric:    name,
			Direction: e.Direction(name),
			Baseline:  b.Mean,
			Current:   c.Mean,
			Stdev:     b.Stdev,
			Diff:      PctDiff(b.Mean, c.Mean),
			Regressed: e.Regressed(name, b, c.Mean),
		})
	}
	return rows
}

// PctDiff is the percent change from a to b, or 0 when a is 0.
func PctDiff(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return (b - a) / a * 100
}
