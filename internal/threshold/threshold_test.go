package threshold

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "unscoped bandwidth floor",
			input: "write_bw_bytes > 100000000",
			want: Threshold{
				Metric:   "write_bw_bytes",
				Operator: ">",
				Value:    100000000,
				Raw:      "write_bw_bytes > 100000000",
			},
		},
		{
			name:  "test scoped throughput",
			input: "dbench60:throughput >= 500",
			want: Threshold{
				Test:     "dbench60",
				Metric:   "throughput",
				Operator: ">=",
				Value:    500,
				Raw:      "dbench60:throughput >= 500",
			},
		},
		{
			name:  "latency trace metric with spaces trimmed",
			input: "  foursizes:find_free_extent_ns_p99<200000 ",
			want: Threshold{
				Test:     "foursizes",
				Metric:   "find_free_extent_ns_p99",
				Operator: "<",
				Value:    200000,
				Raw:      "foursizes:find_free_extent_ns_p99<200000",
			},
		},
		{
			name:  "dashed test name and fractional value",
			input: "dio-4kbs-16threads:elapsed <= 61.5",
			want: Threshold{
				Test:     "dio-4kbs-16threads",
				Metric:   "elapsed",
				Operator: "<=",
				Value:    61.5,
				Raw:      "dio-4kbs-16threads:elapsed <= 61.5",
			},
		},
		{name: "empty", input: "", wantError: true},
		{name: "missing value", input: "elapsed <", wantError: true},
		{name: "bad operator", input: "elapsed != 3", wantError: true},
		{name: "garbage", input: "invalid threshold", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name: "multiple valid thresholds",
			input: []string{
				"elapsed < 120",
				"dbench60:throughput > 100",
				"read_bw_bytes >= 1e6",
			},
			wantCount: 3,
		},
		{
			name:      "empty slice",
			input:     []string{},
			wantCount: 0,
		},
		{
			name: "one valid, one invalid",
			input: []string{
				"elapsed < 120",
				"invalid threshold",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestEvaluator(t *testing.T) {
	values := map[string]float64{
		"write_bw_bytes":          150e6,
		"elapsed":                 60,
		"find_free_extent_ns_p99": 250000,
	}

	tests := []struct {
		name       string
		test       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name: "all thresholds pass",
			test: "randwrite-2xram",
			thresholds: []string{
				"write_bw_bytes > 100000000",
				"elapsed <= 60",
			},
			wantPass: []bool{true, true},
		},
		{
			name: "some thresholds fail",
			test: "foursizes",
			thresholds: []string{
				"foursizes:find_free_extent_ns_p99 < 200000",
				"elapsed < 120",
			},
			wantPass: []bool{false, true},
		},
		{
			name: "other test scope is ignored",
			test: "randwrite-2xram",
			thresholds: []string{
				"foursizes:find_free_extent_ns_p99 < 1",
				"elapsed < 120",
			},
			wantPass: []bool{true},
		},
		{
			name: "unscoped missing metric is skipped",
			test: "randwrite-2xram",
			thresholds: []string{
				"throughput > 1",
			},
			wantPass: []bool{},
		},
		{
			name: "scoped missing metric fails",
			test: "dbench60",
			thresholds: []string{
				"dbench60:throughput > 1",
			},
			wantPass: []bool{false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			evaluator := NewEvaluator(thresholds)
			results := evaluator.Evaluate(tt.test, values)

			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}

			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f)",
						i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
			}
			if got := len(Failed(results)); got != countFalse(tt.wantPass) {
				t.Errorf("Failed() returned %d results, want %d", got, countFalse(tt.wantPass))
			}
		})
	}
}

func countFalse(bs []bool) int {
	n := 0
	for _, b := range bs {
		if !b {
			n++
		}
	}
	return n
}

func TestEvaluatorMessages(t *testing.T) {
	th, err := Parse("elapsed < 10")
	if err != nil {
		t.Fatal(err)
	}
	results := NewEvaluator([]Threshold{th}).Evaluate("x", map[string]float64{"elapsed": 12})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !strings.HasPrefix(results[0].Message, "✗ elapsed < 10") {
		t.Errorf("unexpected message %q", results[0].Message)
	}

	var nilEval *Evaluator
	if got := nilEval.Evaluate("x", nil); got != nil {
		t.Errorf("nil evaluator returned %v", got)
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal true", 50, "<=", 100, true},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than false", 50, ">", 100, false},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal true", 150, ">=", 100, true},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}
