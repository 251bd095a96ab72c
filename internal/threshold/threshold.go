package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Threshold is an absolute limit on one metric of a run, checked in
// addition to the statistical baseline.
type Threshold struct {
	Test     string  // optional; empty applies to every test reporting Metric
	Metric   string  // flattened metric name, e.g. "write_bw_bytes", "find_free_extent_ns_p99"
	Operator string  // "<", "<=", ">", ">=", "=="
	Value    float64 // limit to compare against
	Raw      string  // original string for display
}

// Applies reports whether t is checked for test.
func (t Threshold) Applies(test string) bool {
	return t.Test == "" || t.Test == test
}

// Result is the outcome of one threshold against one run.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator checks thresholds against flattened run metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks every threshold that applies to test. An unscoped
// threshold on a metric the run did not report is skipped; a threshold
// scoped to this test fails if its metric is missing.
func (e *Evaluator) Evaluate(test string, values map[string]float64) []Result {
	if e == nil || len(e.thresholds) == 0 {
		return nil
	}

	var results []Result
	for _, t := range e.thresholds {
		if !t.Applies(test) {
			continue
		}
		actual, ok := values[t.Metric]
		if !ok {
			if t.Test == "" {
				continue
			}
			results = append(results, Result{
				Threshold: t,
				Pass:      false,
				Message:   fmt.Sprintf("✗ %s: metric not reported", t.Raw),
			})
			continue
		}
		results = append(results, evaluateOne(t, actual))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Pass {
			out = append(out, r)
		}
	}
	return out
}

func evaluateOne(t Threshold, actual float64) Result {
	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

var pattern = regexp.MustCompile(`^(?:([A-Za-z0-9_.-]+):)?([A-Za-z0-9_.]+)\s*([<>=!]+)\s*(-?[0-9.eE+]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "write_bw_bytes > 100000000"                  (every test)
// - "dbench60:throughput >= 500"                  (one test)
// - "foursizes:find_free_extent_ns_p99 < 200000"  (latency trace metric)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: [test:]metric operator value, e.g., 'dbench60:throughput >= 500')", s)
	}

	test := matches[1]
	metric := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Test:     test,
		Metric:   metric,
		Operator: operator,
		Value:    value,
		Raw:      s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	for _, v := range valid {
		if operator == v {
			return true
		}
	}
	return false
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
