package latency

import (
	"fmt"
	"math"
	"sort"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// histogramMax bounds the recorded delays at ten minutes. Longer delays
	// are clamped; min, max and mean stay exact.
	histogramMax     = int64(10 * 60 * 1e9)
	histogramSigFigs = 3
)

// Histogram maps an observed delay in nanoseconds to how often it occurred.
type Histogram map[int64]uint64

// Calls returns the total number of observations.
func (h Histogram) Calls() uint64 {
	var n uint64
	for _, c := range h {
		n += c
	}
	return n
}

// Distinct returns the number of distinct delays observed.
func (h Histogram) Distinct() int {
	return len(h)
}

// Stats is the reduced form of one function's histogram.
type Stats struct {
	Mean  float64
	Min   float64
	P50   float64
	P95   float64
	P99   float64
	Max   float64
	Calls uint64
}

// Values returns the metric map stored for a latency sample group.
func (s Stats) Values() map[string]float64 {
	return map[string]float64{
		"ns_mean": s.Mean,
		"ns_min":  s.Min,
		"ns_p50":  s.P50,
		"ns_p95":  s.P95,
		"ns_p99":  s.P99,
		"ns_max":  s.Max,
		"calls":   float64(s.Calls),
	}
}

// Reduce summarizes the histogram. An empty histogram reduces to the zero
// Stats.
func (h Histogram) Reduce() (Stats, error) {
	var st Stats
	if len(h) == 0 {
		return st, nil
	}

	delays := make([]int64, 0, len(h))
	for d := range h {
		delays = append(delays, d)
	}
	sort.Slice(delays, func(i, j int) bool { return delays[i] < delays[j] })

	hist := hdrhistogram.New(1, histogramMax, histogramSigFigs)
	var sum float64
	for _, d := range delays {
		count := h[d]
		if count == 0 {
			continue
		}
		if count > math.MaxInt64 {
			return st, fmt.Errorf("delay %d: count %d out of range", d, count)
		}
		st.Calls += count
		sum += float64(d) * float64(count)

		v := d
		if v < 0 {
			v = 0
		}
		if v > histogramMax {
			v = histogramMax
		}
		if err := hist.RecordValues(v, int64(count)); err != nil {
			return st, fmt.Errorf("record delay %d: %w", d, err)
		}
	}
	if st.Calls == 0 {
		return Stats{}, nil
	}

	st.Min = float64(firstObserved(h, delays))
	st.Max = float64(lastObserved(h, delays))
	st.Mean = sum / float64(st.Calls)
	st.P50 = st.clamp(hist.ValueAtQuantile(50))
	st.P95 = st.clamp(hist.ValueAtQuantile(95))
	st.P99 = st.clamp(hist.ValueAtQuantile(99))
	return st, nil
}

// clamp keeps a bucketed percentile inside the exact observed range.
func (s Stats) clamp(v int64) float64 {
	f := float64(v)
	if f < s.Min {
		return s.Min
	}
	if f > s.Max {
		return s.Max
	}
	return f
}

func firstObserved(h Histogram, sorted []int64) int64 {
	for _, d := range sorted {
		if h[d] > 0 {
			return d
		}
	}
	return 0
}

func lastObserved(h Histogram, sorted []int64) int64 {
	for i := len(sorted) - 1; i >= 0; i-- {
		if h[sorted[i]] > 0 {
			return sorted[i]
		}
	}
	return 0
}
