// Package stats turns repeated benchmark samples into baselines and decides
// whether a new run has regressed against them.
//
// Every metric has a fixed improvement Direction. Explicit overrides are
// consulted first, then the name: anything measuring bytes or iops is
// higher-is-better, call counts and nanosecond latencies are
// lower-is-better, and everything else defaults to lower-is-better.
//
// A metric regresses when the candidate falls outside Z standard deviations
// of the baseline mean on the bad side. A whole test regresses only when
// enough of its headline metrics do.
package stats
