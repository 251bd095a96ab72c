// Package latency attaches per-function kernel latency probes around a
// workload and reduces what they observed into latency sample groups.
//
// A Tracer is configured once per test with the kernel functions to trace.
// Start spawns one probe process per function and returns a Scope; Stop on
// that scope interrupts every probe, collects the histogram it printed on
// exit and reduces it to mean, min, percentiles, max and call count.
//
// Probe failures are isolated. A probe that fails to start, exits non-zero
// or does not exit within the stop timeout is omitted from the Result and
// the scope carries on with the remaining functions. The only fatal
// condition is ErrTracingOverflow, returned when a probe observed more
// distinct delays than the histogram bound allows.
package latency
