package latency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/josefbacik/fsperf/internal/command"
	"github.com/josefbacik/fsperf/internal/metrics"
)

const (
	// DefaultStopTimeout bounds how long one probe may take to flush and exit.
	DefaultStopTimeout = 15 * time.Second
	// DefaultReadyMarker is what bpftrace prints once its probes are attached.
	DefaultReadyMarker = "Attaching"
	defaultReadyWait   = 10 * time.Second
	pipeWaitDelay      = time.Second
)

// Options configures a Tracer.
type Options struct {
	// Functions are the kernel functions to trace. Empty means no tracing.
	Functions []string
	// Command builds each probe command. Defaults to BpftraceProbe.
	Command ProbeCommand
	// StopTimeout bounds each probe's exit after interruption.
	StopTimeout time.Duration
	// MaxDistinct bounds distinct delays per function.
	MaxDistinct int
	// ReadyMarker is awaited in probe output before Start returns. An
	// empty marker skips the wait.
	ReadyMarker string
	// ReadyWait bounds the wait for ReadyMarker.
	ReadyWait time.Duration
	// OnProbeFailure is called with the function name of each omitted probe.
	OnProbeFailure func(function string)
	Log            logrus.FieldLogger
}

// Tracer attaches latency probes around a workload.
type Tracer struct {
	opts Options
	log  logrus.FieldLogger
}

// NewTracer applies defaults to opts and returns a Tracer.
func NewTracer(opts Options) *Tracer {
	if opts.MaxDistinct <= 0 {
		opts.MaxDistinct = DefaultMaxDistinct
	}
	if opts.Command == nil {
		opts.Command = BpftraceProbe(opts.MaxDistinct)
		if opts.ReadyMarker == "" {
			opts.ReadyMarker = DefaultReadyMarker
		}
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.ReadyWait <= 0 {
		opts.ReadyWait = defaultReadyWait
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracer{opts: opts, log: log.WithField("component", "latency")}
}

// Functions returns the traced kernel functions.
func (t *Tracer) Functions() []string {
	return append([]string(nil), t.opts.Functions...)
}

// Enabled reports whether any function is traced.
func (t *Tracer) Enabled() bool {
	return len(t.opts.Functions) > 0
}

// Start attaches one probe per function. Probes are started concurrently and
// Start returns once every probe is attached, has failed, or has exceeded
// the ready wait. A probe that fails to start is omitted; Start itself only
// fails when ctx is already done.
func (t *Tracer) Start(ctx context.Context) (*Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope := &Scope{tracer: t, probes: make([]*probe, len(t.opts.Functions))}
	if !t.Enabled() {
		return scope, nil
	}

	var wg conc.WaitGroup
	for i, fn := range t.opts.Functions {
		wg.Go(func() {
			scope.probes[i] = t.startProbe(ctx, fn)
		})
	}
	wg.Wait()
	return scope, nil
}

func (t *Tracer) startProbe(ctx context.Context, function string) *probe {
	log := t.log.WithField("function", function)
	p := &probe{
		function: function,
		out:      newMarkerBuffer(t.opts.ReadyMarker),
		done:     make(chan struct{}),
	}
	cmdline := t.opts.Command(function)
	p.cmd = exec.Command(command.Shell, "-c", cmdline)
	p.cmd.Stdout = p.out
	p.cmd.Stderr = p.out
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p.cmd.WaitDelay = pipeWaitDelay

	log.WithField("cmd", cmdline).Debug("starting probe")
	if err := p.cmd.Start(); err != nil {
		log.WithError(err).Warn("probe failed to start, omitting")
		t.probeFailed(function)
		return nil
	}
	go func() {
		p.waitErr = p.cmd.Wait()
		close(p.done)
	}()

	if t.opts.ReadyMarker == "" {
		return p
	}
	timer := time.NewTimer(t.opts.ReadyWait)
	defer timer.Stop()
	select {
	case <-p.out.ready:
	case <-p.done:
	case <-timer.C:
		log.Warn("probe not attached within ready wait")
	case <-ctx.Done():
	}
	return p
}

func (t *Tracer) probeFailed(function string) {
	if t.opts.OnProbeFailure != nil {
		t.opts.OnProbeFailure(function)
	}
}

// Scope is one tracing window. Stop must be called exactly once.
type Scope struct {
	tracer *Tracer
	probes []*probe

	once   sync.Once
	result Result
	err    error
}

// Stop interrupts every probe, waits for each in order until a shared
// deadline StopTimeout after the interrupt and reduces the histograms that came back. Repeated calls return
// the first call's outcome.
func (s *Scope) Stop() (Result, error) {
	s.once.Do(func() {
		s.result, s.err = s.stop()
	})
	return s.result, s.err
}

func (s *Scope) stop() (Result, error) {
	t := s.tracer
	res := Result{Stats: make(map[string]Stats)}

	for _, p := range s.probes {
		if p != nil {
			p.signal(syscall.SIGINT)
		}
	}
	deadline := time.Now().Add(t.opts.StopTimeout)

	var overflow error
	for i, fn := range t.opts.Functions {
		p := s.probes[i]
		if p == nil {
			res.Omitted = append(res.Omitted, fn)
			continue
		}
		log := t.log.WithField("function", fn)

		hist, err := s.collect(p, deadline)
		switch {
		case errors.Is(err, ErrTracingOverflow):
			log.WithError(err).Error("probe overflowed")
			overflow = errors.Join(overflow, fmt.Errorf("trace %s: %w", fn, err))
			continue
		case err != nil:
			log.WithError(err).Warn("probe failed, omitting")
			t.probeFailed(fn)
			res.Omitted = append(res.Omitted, fn)
			continue
		}

		st, err := hist.Reduce()
		if err != nil {
			log.WithError(err).Warn("reduce histogram failed, omitting")
			t.probeFailed(fn)
			res.Omitted = append(res.Omitted, fn)
			continue
		}
		if st.Calls == 0 {
			log.Debug("no calls observed")
			continue
		}
		res.Functions = append(res.Functions, fn)
		res.Stats[fn] = st
	}
	if overflow != nil {
		return res, overflow
	}
	return res, nil
}

// collect waits for p to exit, killing it at deadline, and parses its output.
func (s *Scope) collect(p *probe, deadline time.Time) (Histogram, error) {
	select {
	case <-p.done:
	default:
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			p.signal(syscall.SIGKILL)
			<-p.done
			return nil, fmt.Errorf("probe did not exit within %s", s.tracer.opts.StopTimeout)
		}
	}

	// An overflow is reported regardless of how the probe exited.
	hist, parseErr := ParseHistogram(bytes.NewReader(p.out.Bytes()), s.tracer.opts.MaxDistinct)
	if errors.Is(parseErr, ErrTracingOverflow) {
		return nil, parseErr
	}
	if p.waitErr != nil {
		return nil, fmt.Errorf("probe exited: %w: %s", p.waitErr, lastLine(p.out.Bytes()))
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return hist, nil
}

type probe struct {
	function string
	cmd      *exec.Cmd
	out      *markerBuffer
	done     chan struct{}
	waitErr  error
}

// signal delivers sig to the probe's whole process group so helpers started
// by the shell see it too.
func (p *probe) signal(sig syscall.Signal) {
	if p.cmd.Process == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil {
		_ = p.cmd.Process.Signal(sig)
	}
}

// markerBuffer collects probe output and closes ready once marker has been
// written.
type markerBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	marker []byte
	ready  chan struct{}
	seen   bool
}

var _ io.Writer = (*markerBuffer)(nil)

func newMarkerBuffer(marker string) *markerBuffer {
	return &markerBuffer{marker: []byte(marker), ready: make(chan struct{})}
}

func (m *markerBuffer) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.buf.Write(p)
	if !m.seen && len(m.marker) > 0 && bytes.Contains(m.buf.Bytes(), m.marker) {
		m.seen = true
		close(m.ready)
	}
	return n, err
}

func (m *markerBuffer) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buf.Bytes()...)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}

// Result is what a tracing scope produced.
type Result struct {
	// Functions lists traced functions with data, in configured order.
	Functions []string
	Stats     map[string]Stats
	// Omitted lists functions whose probe failed.
	Omitted []string
}

// Groups converts the result into latency sample groups.
func (r Result) Groups() []metrics.SampleGroup {
	groups := make([]metrics.SampleGroup, 0, len(r.Functions))
	for _, fn := range r.Functions {
		groups = append(groups, metrics.SampleGroup{
			Kind:     metrics.KindLatency,
			Function: fn,
			Values:   r.Stats[fn].Values(),
		})
	}
	return groups
}
