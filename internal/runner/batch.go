package runner

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/josefbacik/fsperf/internal/stats"
	"github.com/josefbacik/fsperf/internal/store"
	"github.com/josefbacik/fsperf/internal/threshold"
)

// Selection decides which tests of a suite are attempted.
type Selection struct {
	// Only restricts the run to the named tests. Naming a one-off test
	// here runs it without OneOff.
	Only     []string
	Disabled []string
	OneOff   bool
}

// skip returns why t is not attempted, or "" when it is.
func (s Selection) skip(t Test) string {
	name := t.Name()
	switch {
	case slices.Contains(s.Disabled, name):
		return "disabled"
	case len(s.Only) > 0 && !slices.Contains(s.Only, name):
		return "not selected"
	case t.Flags().OneOff && !s.OneOff && !slices.Contains(s.Only, name):
		return "one-off"
	}
	return ""
}

// Summary is the outcome of RunAll, test names grouped by outcome.
type Summary struct {
	Reports   []*Report
	Passed    []string
	Failed    []string
	Regressed []string
	NotRun    []string
	Skipped   []string
}

// OK reports whether nothing failed or regressed.
func (s Summary) OK() bool {
	return len(s.Failed) == 0 && len(s.Regressed) == 0
}

// RunAll attempts each selected test in order. Every recorded run is
// checked against the baseline averaged from history recorded before it
// and against the configured thresholds. RunAll only returns an error when
// ctx is done or history cannot be read; test failures are reported in the
// Summary.
func (r *Runner) RunAll(ctx context.Context, tests []Test, sel Selection) (Summary, error) {
	var sum Summary
	for _, t := range tests {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		log := r.log.WithField("test", t.Name())
		if reason := sel.skip(t); reason != "" {
			log.WithField("reason", reason).Info("skipping test")
			sum.Skipped = append(sum.Skipped, t.Name())
			continue
		}

		baseline, err := r.Baseline(ctx, t.Name())
		if err != nil {
			return sum, fmt.Errorf("load baseline for %s: %w", t.Name(), err)
		}

		rep, err := r.Run(ctx, t)
		sum.Reports = append(sum.Reports, rep)
		switch {
		case IsNotRun(err):
			sum.NotRun = append(sum.NotRun, rep.Test)
		case err != nil:
			sum.Failed = append(sum.Failed, rep.Test)
		default:
			r.check(rep, baseline, log)
			switch rep.Outcome {
			case OutcomeFailed:
				sum.Failed = append(sum.Failed, rep.Test)
			case OutcomeRegressed:
				sum.Regressed = append(sum.Regressed, rep.Test)
			default:
				sum.Passed = append(sum.Passed, rep.Test)
			}
		}
		r.opt.Recorder.ObserveRun(rep.Test, string(rep.Outcome), rep.Elapsed)
	}
	return sum, nil
}

// Baseline averages the successful runs of test recorded under the
// runner's section and purpose. It returns nil when there is no history.
func (r *Runner) Baseline(ctx context.Context, test string) (map[string]stats.Baseline, error) {
	if r.opt.Store == nil {
		return nil, nil
	}
	f := store.Filter{
		Name:    test,
		Config:  r.opt.Section.Name,
		Purpose: r.opt.Purpose,
	}
	if r.opt.BaselineAge > 0 {
		f.Since = time.Now().Add(-r.opt.BaselineAge)
	}
	runs, err := r.opt.Store.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return r.opt.Engine.Average(runs), nil
}

// check fills in the threshold results and regression verdict of a
// successful run and settles its outcome.
func (r *Runner) check(rep *Report, baseline map[string]stats.Baseline, log logrus.FieldLogger) {
	values := rep.Run.Flatten()

	rep.Thresholds = r.evaluator.Evaluate(rep.Test, values)
	if failed := threshold.Failed(rep.Thresholds); len(failed) > 0 {
		for _, f := range failed {
			log.WithField("threshold", f.Threshold.Raw).Warn(f.Message)
		}
		rep.Outcome = OutcomeFailed
	}

	if baseline == nil {
		log.Info("no baseline recorded yet")
		return
	}
	verdict := r.opt.Engine.Check(baseline, values)
	rep.Verdict = &verdict
	for _, m := range verdict.RegressedMetrics() {
		r.opt.Recorder.Regressed(rep.Test, m)
	}
	if verdict.Regressed && rep.Outcome != OutcomeFailed {
		rep.Outcome = OutcomeRegressed
		log.WithFields(logrus.Fields{
			"headline_regressions": verdict.HeadlineRegressions,
			"metrics":              verdict.RegressedMetrics(),
		}).Warn("test regressed")
	}
}
