package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/josefbacik/fsperf/internal/metrics"
)

// Summary is the mean and sample standard deviation of N values.
type Summary struct {
	Mean  float64 `json:"mean" yaml:"mean"`
	Stdev float64 `json:"stdev" yaml:"stdev"`
	N     int     `json:"n" yaml:"n"`
}

// Baseline is the historical summary of one metric. The embedded Summary is
// the authoritative view used for regression checks; Raw and Filtered are
// both kept for reporting.
type Baseline struct {
	Summary  `yaml:",inline"`
	Raw      Summary `json:"raw" yaml:"raw"`
	Filtered Summary `json:"filtered" yaml:"filtered"`
}

// Average computes a Baseline for every metric reported by runs. Failed
// runs are ignored.
func (e *Engine) Average(runs []*metrics.Run) map[string]Baseline {
	samples := make([]map[string]float64, 0, len(runs))
	for _, r := range runs {
		if r == nil || r.Failed {
			continue
		}
		samples = append(samples, r.Flatten())
	}
	return e.AverageSamples(samples)
}

// AverageSamples computes a Baseline per metric over flattened samples.
func (e *Engine) AverageSamples(samples []map[string]float64) map[string]Baseline {
	values := make(map[string][]float64)
	for _, s := range samples {
		for name, v := range s {
			values[name] = append(values[name], v)
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]Baseline, len(values))
	for _, name := range names {
		raw := summarize(values[name])
		filtered := summarize(withoutOutliers(values[name], e.opts.OutlierZ))
		b := Baseline{Summary: raw, Raw: raw, Filtered: filtered}
		if e.opts.UseFiltered {
			b.Summary = filtered
		}
		out[name] = b
	}
	return out
}

func summarize(v []float64) Summary {
	switch len(v) {
	case 0:
		return Summary{}
	case 1:
		return Summary{Mean: v[0], N: 1}
	}
	mean, std := stat.MeanStdDev(v, nil)
	return Summary{Mean: mean, Stdev: std, N: len(v)}
}

// withoutOutliers repeatedly drops values whose z-score against the
// current set exceeds limit, recomputing mean and stdev after every pass,
// until nothing more is dropped.
func withoutOutliers(v []float64, limit float64) []float64 {
	kept := append([]float64(nil), v...)
	for len(kept) > 2 {
		mean, std := stat.MeanStdDev(kept, nil)
		if std == 0 {
			break
		}
		next := kept[:0:0]
		for _, x := range kept {
			if math.Abs((x-mean)/std) <= limit {
				next = append(next, x)
			}
		}
		if len(next) == len(kept) {
			break
		}
		kept = next
	}
	return kept
}
