package latency

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ErrTracingOverflow reports a probe that observed more distinct delays than
// the histogram can hold. It usually means the traced function is too hot.
var ErrTracingOverflow = errors.New("latency histogram overflow")

// DefaultMaxDistinct is the bound on distinct delays per function.
const DefaultMaxDistinct = 65536

// histogramLine matches map dump lines such as "@delays[1834]: 12".
var histogramLine = regexp.MustCompile(`^@\w*\[(-?\d+)\]:\s*(\d+)\s*$`)

// ParseHistogram reads a probe's map dump. Lines that are not histogram
// entries are ignored. A dump with more than maxDistinct entries, or one
// in which the probe reported a full map, is ErrTracingOverflow.
func ParseHistogram(r io.Reader, maxDistinct int) (Histogram, error) {
	if maxDistinct <= 0 {
		maxDistinct = DefaultMaxDistinct
	}
	hist := make(Histogram)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if isMapFull(line) {
			return nil, fmt.Errorf("%w: %s", ErrTracingOverflow, line)
		}
		m := histogramLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		delay, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse delay %q: %w", m[1], err)
		}
		count, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse count %q: %w", m[2], err)
		}
		hist[delay] += count
		if len(hist) > maxDistinct {
			return nil, fmt.Errorf("%w: more than %d distinct delays", ErrTracingOverflow, maxDistinct)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read histogram: %w", err)
	}
	return hist, nil
}

func isMapFull(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "map full")
}
