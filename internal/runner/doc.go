// Package runner drives benchmark tests through their lifecycle.
//
// A run moves through a fixed sequence of states:
//
//	Idle → Prepared → SetupDone → Tracing → Executing → Collected → TornDown → Recorded
//
//   - Prepared: device locked, I/O scheduler set, filesystem created and
//     mounted. Skipped for tests flagged SkipMkfsAndMount.
//   - SetupDone: the test's Setup hook ran, followed by a remount when the
//     test asks for one.
//   - Tracing and Executing: latency probes are attached around the
//     workload only.
//   - Collected: auxiliary collectors ran, best effort.
//   - TornDown: the test's Teardown hook ran, then the mount was released.
//   - Recorded: the run was appended to the store.
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		Section:   section,
//		Directory: "/mnt/test",
//		Results:   "results",
//		Purpose:   "baseline",
//		Exec:      command.New(log),
//		Store:     db,
//		Log:       log,
//	})
//	sum, err := r.RunAll(ctx, suite.Default(), runner.Selection{})
//
// # Error Handling
//
// A test that cannot run in the current environment returns an error made
// with [NotRun]. Nothing is recorded and resources are still released.
// Workload and tracing failures record the run marked failed when the
// mount exists. Failures while preparing the device or in Setup record
// nothing. Teardown and mount release errors are joined into the returned
// error and never skip one another.
package runner
