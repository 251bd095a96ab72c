package latency

import (
	"fmt"
)

// ProbeCommand builds the shell command that traces one kernel function.
// The command must run until interrupted and then print its histogram as
// "@<map>[<delay ns>]: <count>" lines.
type ProbeCommand func(function string) string

// BpftraceProbe returns a ProbeCommand using a bpftrace kprobe/kretprobe
// pair. The delay map is sized one entry above maxDistinct so an overflow
// is visible in the dump instead of being silently dropped.
func BpftraceProbe(maxDistinct int) ProbeCommand {
	if maxDistinct <= 0 {
		maxDistinct = DefaultMaxDistinct
	}
	return func(function string) string {
		return fmt.Sprintf("BPFTRACE_MAX_MAP_KEYS=%d bpftrace -e '"+
			"kprobe:%[2]s { @start[tid] = nsecs; } "+
			"kretprobe:%[2]s /@start[tid]/ { @delays[nsecs - @start[tid]] = count(); delete(@start[tid]); } "+
			"END { clear(@start); }'",
			maxDistinct+1, function)
	}
}
