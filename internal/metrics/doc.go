// Package metrics holds the benchmark data model and the harness-level
// Prometheus instruments.
//
// A [Run] is one execution of a named test under one device section and
// purpose. Everything measured during the run is attached as a
// [SampleGroup]: a flat metric-name to value mapping tagged with the
// [Kind] of source that produced it.
//
//	run := metrics.NewRun("randwrite-2xram", "btrfs", "continuous")
//	run.Add(metrics.SampleGroup{Kind: metrics.KindFio, Values: values})
//	flat := run.Flatten()
//
// Latency-trace groups carry the traced kernel function and flatten to
// metric names of the form <function>_<stat>.
//
// # Harness metrics
//
// [Recorder] wraps a private Prometheus registry counting run outcomes,
// probe failures and regressions. [Recorder.WriteTextfile] dumps it in the
// node_exporter textfile format.
package metrics
