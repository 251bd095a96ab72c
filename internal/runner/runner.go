package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/josefbacik/fsperf/internal/collect"
	"github.com/josefbacik/fsperf/internal/command"
	"github.com/josefbacik/fsperf/internal/config"
	"github.com/josefbacik/fsperf/internal/device"
	"github.com/josefbacik/fsperf/internal/latency"
	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/mount"
	"github.com/josefbacik/fsperf/internal/output"
	"github.com/josefbacik/fsperf/internal/stats"
	"github.com/josefbacik/fsperf/internal/store"
	"github.com/josefbacik/fsperf/internal/threshold"
	"github.com/josefbacik/fsperf/internal/tracing"
)

const defaultProgressInterval = time.Second

// Options configure the Runner.
type Options struct {
	Section   config.Section
	Directory string // mount point the tests run in
	Results   string // each run writes raw output under Results/<ulid>
	Purpose   string
	LockDir   string // empty disables device locking
	SysFS     string // defaults to /sys

	Exec       command.Executor    // required
	Store      store.Store         // nil disables recording and baselines
	Collectors []collect.Collector // run in order after the workload

	ProbeCommand     latency.ProbeCommand // nil selects bpftrace
	ProbeReadyMarker string
	ProbeTimeout     time.Duration

	Engine      *stats.Engine // defaults to stats.New with default options
	Thresholds  []threshold.Threshold
	BaselineAge time.Duration // 0 means all history

	Recorder         *metrics.Recorder
	Tracer           trace.Tracer
	Progress         io.Writer // nil disables the progress line
	ProgressInterval time.Duration
	Log              logrus.FieldLogger
}

func (o *Options) normalize() {
	if o.Engine == nil {
		o.Engine = stats.New(stats.Options{})
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("fsperf")
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = defaultProgressInterval
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// Runner drives tests through their lifecycle against one device section.
// Runs are strictly sequential.
type Runner struct {
	opt       Options
	log       logrus.FieldLogger
	evaluator *threshold.Evaluator
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:       opt,
		log:       opt.Log.WithField("component", "runner"),
		evaluator: threshold.NewEvaluator(opt.Thresholds),
	}
}

// Report describes one attempt at a test.
type Report struct {
	Test    string
	Section string
	// State is the last lifecycle state completed.
	State   State
	Outcome Outcome
	// Run is the recorded run, nil when nothing was recorded.
	Run     *metrics.Run
	Latency latency.Result
	Elapsed time.Duration
	Err     error

	// Filled in by RunAll.
	Verdict    *stats.TestVerdict
	Thresholds []threshold.Result
}

// Run executes one attempt of t. Whatever state the attempt reaches, the
// test's teardown and then the mount release are attempted exactly once
// before Run returns. A NotRun error is returned as is and nothing is
// recorded. A workload or tracing failure records the run marked failed,
// provided the mount was acquired or the test does its own mounting.
func (r *Runner) Run(ctx context.Context, t Test) (*Report, error) {
	start := time.Now()
	ctx, span := tracing.StartRunSpan(ctx, r.opt.Tracer, t.Name(), r.opt.Section.Name, r.opt.Purpose)

	a := r.newAttempt(t)
	err := a.execute(ctx)

	rep := a.report
	rep.Elapsed = time.Since(start)
	rep.Err = err
	log := a.log.WithFields(logrus.Fields{
		"state":   rep.State,
		"elapsed": rep.Elapsed.Truncate(time.Millisecond),
	})
	spanErr := err
	switch {
	case err == nil:
		rep.Outcome = OutcomePassed
		log.Info("run complete")
	case IsNotRun(err):
		rep.Outcome = OutcomeNotRun
		spanErr = nil
		log.WithError(err).Info("test not run")
	default:
		rep.Outcome = OutcomeFailed
		log.WithError(err).Error("run failed")
	}
	tracing.EndSpan(span, spanErr,
		attribute.String("fsperf.state", rep.State.String()),
		attribute.String("fsperf.outcome", string(rep.Outcome)),
	)
	return rep, err
}

// attempt is the state of one Run call.
type attempt struct {
	r      *Runner
	test   Test
	flags  Flags
	log    logrus.FieldLogger
	env    Env
	run    *metrics.Run
	report *Report
	scope  *latency.Scope

	lock    *mount.DeviceLock
	mnt     *mount.Mount
	release mount.Release
	// recordable is set once a failed run may still be recorded: the
	// mount exists or the test manages its own.
	recordable bool
	// execFailed is set when tracing or the workload failed.
	execFailed bool
}

func (r *Runner) newAttempt(t Test) *attempt {
	sec := r.opt.Section
	run := metrics.NewRun(t.Name(), sec.Name, r.opt.Purpose)
	log := r.log.WithFields(logrus.Fields{
		"test":    t.Name(),
		"section": sec.Name,
		"purpose": r.opt.Purpose,
	})
	dev := device.New(sec.Device, r.opt.Exec)
	if r.opt.SysFS != "" {
		dev.SysFS = r.opt.SysFS
	}
	return &attempt{
		r:     r,
		test:  t,
		flags: t.Flags(),
		log:   log,
		run:   run,
		env: Env{
			Section:   sec,
			Directory: r.opt.Directory,
			Results:   filepath.Join(r.opt.Results, run.ULID),
			Exec:      r.opt.Exec,
			Device:    dev,
			Log:       log,
		},
		report:  &Report{Test: t.Name(), Section: sec.Name, State: StateIdle},
		release: func() error { return nil },
	}
}

func (a *attempt) execute(ctx context.Context) error {
	err := a.forward(ctx)
	cleanupErr := a.cleanup(ctx)
	if err == nil && cleanupErr == nil {
		a.report.State = StateTornDown
	}

	switch {
	case IsNotRun(err) || IsNotRun(cleanupErr):
		return errors.Join(err, cleanupErr)
	case err == nil:
		// a teardown failure does not invalidate the measurements
	case a.execFailed && a.recordable:
		a.run.Failed = true
	default:
		return errors.Join(err, cleanupErr)
	}

	recErr := a.record(ctx)
	if err == nil && cleanupErr == nil && recErr == nil {
		a.report.State = StateRecorded
	}
	return errors.Join(err, cleanupErr, recErr)
}

// forward walks the lifecycle up to Collected, stopping at the first error.
func (a *attempt) forward(ctx context.Context) error {
	if err := os.MkdirAll(a.env.Results, 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}
	if a.flags.SkipMkfsAndMount {
		a.recordable = true
	} else if err := a.step(ctx, StatePrepared, a.prepare); err != nil {
		return err
	}
	if err := a.step(ctx, StateSetupDone, a.setup); err != nil {
		return err
	}
	if err := a.step(ctx, StateTracing, a.startTracing); err != nil {
		a.execFailed = !IsNotRun(err)
		return err
	}
	if err := a.step(ctx, StateExecuting, a.executeWorkload); err != nil {
		a.execFailed = !IsNotRun(err)
		return err
	}
	return a.step(ctx, StateCollected, a.collect)
}

// step runs fn inside a span named after the state it leads to and
// advances the report's state on success.
func (a *attempt) step(ctx context.Context, s State, fn func(context.Context) error) error {
	ctx, span := tracing.StartStateSpan(ctx, a.r.opt.Tracer, s.String())
	err := fn(ctx)
	spanErr := err
	if IsNotRun(err) {
		spanErr = nil
	}
	tracing.EndSpan(span, spanErr)
	if err != nil {
		return err
	}
	a.report.State = s
	a.log.WithField("state", s).Debug("state reached")
	return nil
}

func (a *attempt) prepare(ctx context.Context) error {
	sec := a.env.Section
	if a.r.opt.LockDir != "" {
		lock, err := mount.LockDevice(a.r.opt.LockDir, sec.Device)
		if err != nil {
			return fmt.Errorf("lock %s: %w", sec.Device, err)
		}
		a.lock = lock
	}
	if sec.IOSched != "" {
		if err := a.env.Device.SetScheduler(sec.IOSched); err != nil {
			return fmt.Errorf("set io scheduler: %w", err)
		}
	}
	if err := a.env.Device.Mkfs(ctx, sec.Mkfs); err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}
	if sec.Mount == "" {
		// no mount command: the directory is used as it is
		a.recordable = true
		return nil
	}

	m, release, err := mount.Acquire(ctx, a.env.Exec, mount.Spec{
		Command: sec.Mount,
		Device:  sec.Device,
		Target:  a.env.Directory,
	}, a.log)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	a.mnt, a.release, a.recordable = m, release, true

	if sec.ReadPolicy != "" {
		if err := a.env.Device.SetReadPolicy(ctx, sec.ReadPolicy); err != nil {
			if !errors.Is(err, device.ErrNoReadPolicy) {
				return fmt.Errorf("set read policy: %w", err)
			}
			a.log.WithError(err).Warn("read policy not supported, continuing")
		}
	}
	return nil
}

func (a *attempt) setup(ctx context.Context) error {
	if err := a.test.Setup(ctx, a.env); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if a.flags.NeedsRemountAfterSetup && a.mnt != nil {
		if _, err := a.mnt.Cycle(ctx); err != nil {
			return fmt.Errorf("remount after setup: %w", err)
		}
	}
	if a.collecting() {
		collect.Prepare(ctx, a.log, a.target(), a.r.opt.Collectors...)
	}
	return nil
}

func (a *attempt) startTracing(ctx context.Context) error {
	opt := a.r.opt
	tracer := latency.NewTracer(latency.Options{
		Functions:      a.test.Functions(),
		Command:        opt.ProbeCommand,
		StopTimeout:    opt.ProbeTimeout,
		ReadyMarker:    opt.ProbeReadyMarker,
		OnProbeFailure: opt.Recorder.ProbeFailed,
		Log:            a.log,
	})
	scope, err := tracer.Start(ctx)
	if err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}
	a.scope = scope
	return nil
}

func (a *attempt) executeWorkload(ctx context.Context) error {
	var progress *output.ProgressReporter
	if a.r.opt.Progress != nil {
		progress = output.NewProgressReporter(a.test.Name(), a.r.opt.ProgressInterval, a.r.opt.Progress)
		progress.Start()
	}
	err := a.test.Execute(ctx, a.env, a.run)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		err = fmt.Errorf("execute: %w", err)
	}

	res, stopErr := a.scope.Stop()
	a.report.Latency = res
	a.run.Add(res.Groups()...)
	return errors.Join(err, stopErr)
}

func (a *attempt) collect(ctx context.Context) error {
	if a.collecting() {
		a.run.Add(collect.Run(ctx, a.log, a.target(), a.r.opt.Collectors...)...)
	}
	return nil
}

// cleanup tears the test down, then releases the mount and the device
// lock. Every step is attempted; errors are joined.
func (a *attempt) cleanup(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.StartStateSpan(ctx, a.r.opt.Tracer, StateTornDown.String())

	var errs []error
	if err := a.test.Teardown(ctx, a.env); err != nil {
		errs = append(errs, fmt.Errorf("teardown: %w", err))
	}
	if err := a.release(); err != nil {
		errs = append(errs, fmt.Errorf("release mount: %w", err))
	}
	if err := a.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("unlock device: %w", err))
	}
	err := errors.Join(errs...)
	tracing.EndSpan(span, err)
	return err
}

func (a *attempt) record(ctx context.Context) error {
	a.report.Run = a.run
	if a.r.opt.Store == nil {
		return nil
	}
	if err := a.r.opt.Store.Append(context.WithoutCancel(ctx), a.run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	a.log.WithFields(logrus.Fields{
		"run_id": a.run.ID,
		"failed": a.run.Failed,
	}).Debug("run recorded")
	return nil
}

func (a *attempt) collecting() bool {
	return !a.flags.SkipMkfsAndMount && len(a.r.opt.Collectors) > 0
}

func (a *attempt) target() collect.Target {
	return collect.Target{Device: a.env.Device, Mount: a.mnt}
}
