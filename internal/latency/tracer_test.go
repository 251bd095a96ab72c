package latency

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josefbacik/fsperf/internal/metrics"
)

const (
	// dumps the [1,2,2,3,100] histogram when interrupted
	goodProbe    = `trap 'printf "@delays[1]: 1\n@delays[2]: 2\n@delays[3]: 1\n@delays[100]: 1\n"; exit 0' INT; echo ready; while :; do sleep 0.05; done`
	stuckProbe   = `trap '' INT; echo ready; exec sleep 30`
	failingProbe = `echo "ERROR: no such kprobe" >&2; exit 3`
	silentProbe  = `trap 'exit 0' INT; echo ready; while :; do sleep 0.05; done`
	fullProbe    = `trap 'echo "@delays[1]: 1"; echo "WARNING: Map full; cannot update element"; exit 0' INT; echo ready; while :; do sleep 0.05; done`
)

func scripted(probes map[string]string) ProbeCommand {
	return func(function string) string {
		return probes[function]
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type failures struct {
	mu  sync.Mutex
	fns []string
}

func (f *failures) record(fn string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fns = append(f.fns, fn)
}

func newTestTracer(probes map[string]string, order []string, fails *failures) *Tracer {
	return NewTracer(Options{
		Functions:      order,
		Command:        scripted(probes),
		StopTimeout:    500 * time.Millisecond,
		ReadyMarker:    "ready",
		ReadyWait:      5 * time.Second,
		OnProbeFailure: fails.record,
		Log:            quietLogger(),
	})
}

func TestTracerCollectsHistograms(t *testing.T) {
	fails := &failures{}
	tr := newTestTracer(map[string]string{"a": goodProbe, "b": goodProbe}, []string{"a", "b"}, fails)

	scope, err := tr.Start(context.Background())
	require.NoError(t, err)
	res, err := scope.Stop()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, res.Functions)
	assert.Empty(t, res.Omitted)
	assert.Equal(t, 2.0, res.Stats["a"].P50)
	assert.InDelta(t, 21.6, res.Stats["b"].Mean, 1e-9)
	assert.Empty(t, fails.fns)

	groups := res.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, metrics.KindLatency, groups[0].Kind)
	assert.Equal(t, "a", groups[0].Function)
	assert.Equal(t, 100.0, groups[0].Values["ns_max"])
}

func TestTracerOmitsStuckProbe(t *testing.T) {
	fails := &failures{}
	probes := map[string]string{"a": goodProbe, "stuck": stuckProbe, "c": goodProbe}
	tr := newTestTracer(probes, []string{"a", "stuck", "c"}, fails)

	scope, err := tr.Start(context.Background())
	require.NoError(t, err)

	start := time.Now()
	res, err := scope.Stop()
	require.NoError(t, err, "a timed out probe does not fail the scope")
	assert.Less(t, time.Since(start), 10*time.Second)

	assert.Equal(t, []string{"a", "c"}, res.Functions)
	assert.Equal(t, []string{"stuck"}, res.Omitted)
	assert.Equal(t, []string{"stuck"}, fails.fns)
}

func TestStuckProbesShareStopDeadline(t *testing.T) {
	fails := &failures{}
	probes := map[string]string{"s1": stuckProbe, "s2": stuckProbe, "s3": stuckProbe, "a": goodProbe}
	tr := newTestTracer(probes, []string{"s1", "s2", "s3", "a"}, fails)

	scope, err := tr.Start(context.Background())
	require.NoError(t, err)

	start := time.Now()
	res, err := scope.Stop()
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 1200*time.Millisecond, "three stuck probes wait out one timeout, not three")
	assert.Equal(t, []string{"a"}, res.Functions)
	assert.Equal(t, []string{"s1", "s2", "s3"}, res.Omitted)
}

func TestTracerOmitsFailedProbes(t *testing.T) {
	fails := &failures{}
	probes := map[string]string{"a": goodProbe, "bad": failingProbe, "quiet": silentProbe}
	tr := newTestTracer(probes, []string{"bad", "a", "quiet"}, fails)

	scope, err := tr.Start(context.Background())
	require.NoError(t, err)
	res, err := scope.Stop()
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, res.Functions)
	assert.Equal(t, []string{"bad"}, res.Omitted)
	assert.NotContains(t, res.Stats, "quiet", "functions without calls are dropped")
}

func TestTracerOverflowIsFatal(t *testing.T) {
	fails := &failures{}
	probes := map[string]string{"a": goodProbe, "hot": fullProbe}
	tr := newTestTracer(probes, []string{"a", "hot"}, fails)

	scope, err := tr.Start(context.Background())
	require.NoError(t, err)
	res, err := scope.Stop()
	require.ErrorIs(t, err, ErrTracingOverflow)
	assert.Contains(t, err.Error(), "hot")
	assert.Equal(t, []string{"a"}, res.Functions)
}

func TestTracerNoFunctions(t *testing.T) {
	tr := NewTracer(Options{Log: quietLogger()})
	assert.False(t, tr.Enabled())

	scope, err := tr.Start(context.Background())
	require.NoError(t, err)
	res, err := scope.Stop()
	require.NoError(t, err)
	assert.Empty(t, res.Functions)
	assert.Empty(t, res.Groups())
}

func TestScopeStopIsIdempotent(t *testing.T) {
	tr := newTestTracer(map[string]string{"a": goodProbe}, []string{"a"}, &failures{})
	scope, err := tr.Start(context.Background())
	require.NoError(t, err)

	first, err := scope.Stop()
	require.NoError(t, err)
	second, err := scope.Stop()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStartWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := newTestTracer(map[string]string{"a": goodProbe}, []string{"a"}, &failures{})
	_, err := tr.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
