package runner

import "github.com/josefbacik/fsperf/internal/metrics"

// State is a point in a run's lifecycle. States are reached in order;
// a run that stops early stays in the last state it completed.
type State int

const (
	StateIdle State = iota
	StatePrepared
	StateSetupDone
	StateTracing
	StateExecuting
	StateCollected
	StateTornDown
	StateRecorded
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StatePrepared:  "prepared",
	StateSetupDone: "setup_done",
	StateTracing:   "tracing",
	StateExecuting: "executing",
	StateCollected: "collected",
	StateTornDown:  "torn_down",
	StateRecorded:  "recorded",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Outcome summarizes how an attempt ended.
type Outcome string

const (
	OutcomePassed    Outcome = metrics.OutcomePassed
	OutcomeFailed    Outcome = metrics.OutcomeFailed
	OutcomeNotRun    Outcome = metrics.OutcomeNotRun
	OutcomeRegressed Outcome = metrics.OutcomeRegressed
)
