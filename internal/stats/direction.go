package stats

import (
	"fmt"
	"strings"
)

// Direction says which way a metric improves.
type Direction int

const (
	LowerIsBetter Direction = iota
	HigherIsBetter
)

func (d Direction) String() string {
	if d == HigherIsBetter {
		return "higher-is-better"
	}
	return "lower-is-better"
}

// MarshalText renders the direction for JSON and YAML exports.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts the forms ParseDirection does.
func (d *Direction) UnmarshalText(b []byte) error {
	v, ok := ParseDirection(string(b))
	if !ok {
		return fmt.Errorf("unknown direction %q", b)
	}
	*d = v
	return nil
}

// Directions maps metric names to a Direction. The zero value applies the
// name heuristics only, but an Engine given the zero value uses
// DefaultDirections. NewDirections(nil) gives an Engine heuristics only.
type Directions struct {
	overrides map[string]Direction
}

// NewDirections copies overrides into an immutable Directions.
func NewDirections(overrides map[string]Direction) Directions {
	m := make(map[string]Direction, len(overrides))
	for k, v := range overrides {
		m[k] = v
	}
	return Directions{overrides: m}
}

// DefaultDirections carries the stock overrides for fio, time and dbench
// metrics.
func DefaultDirections() Directions {
	return NewDirections(map[string]Direction{
		"read_io_bytes":     HigherIsBetter,
		"elapsed":           LowerIsBetter,
		"sys_cpu":           LowerIsBetter,
		"read_lat_ns_min":   LowerIsBetter,
		"read_lat_ns_max":   LowerIsBetter,
		"read_clat_ns_p50":  LowerIsBetter,
		"read_clat_ns_p99":  LowerIsBetter,
		"read_iops":         HigherIsBetter,
		"read_io_kbytes":    HigherIsBetter,
		"read_bw_bytes":     HigherIsBetter,
		"write_lat_ns_min":  LowerIsBetter,
		"write_lat_ns_max":  LowerIsBetter,
		"write_iops":        HigherIsBetter,
		"write_io_kbytes":   HigherIsBetter,
		"write_bw_bytes":    HigherIsBetter,
		"write_clat_ns_p50": LowerIsBetter,
		"write_clat_ns_p99": LowerIsBetter,
		"throughput":        HigherIsBetter,

		// dbench operation latencies
		"ntcreatex": LowerIsBetter,
		"close":     LowerIsBetter,
		"rename":    LowerIsBetter,
		"unlink":    LowerIsBetter,
		"deltree":   LowerIsBetter,
		"mkdir":     LowerIsBetter,
		"qpathinfo": LowerIsBetter,
		"qfileinfo": LowerIsBetter,
		"qfsinfo":   LowerIsBetter,
		"sfileinfo": LowerIsBetter,
		"find":      LowerIsBetter,
		"writex":    LowerIsBetter,
		"readx":     LowerIsBetter,
		"lockx":     LowerIsBetter,
		"unlockx":   LowerIsBetter,
		"flush":     LowerIsBetter,
	})
}

// With returns a copy with extra overrides layered on top.
func (d Directions) With(overrides map[string]Direction) Directions {
	m := make(map[string]Direction, len(d.overrides)+len(overrides))
	for k, v := range d.overrides {
		m[k] = v
	}
	for k, v := range overrides {
		m[k] = v
	}
	return Directions{overrides: m}
}

// Of returns the direction of metric name.
func (d Directions) Of(name string) Direction {
	if dir, ok := d.overrides[name]; ok {
		return dir
	}
	switch {
	case strings.Contains(name, "bytes"), strings.Contains(name, "iops"):
		return HigherIsBetter
	case strings.Contains(name, "calls"), strings.Contains(name, "_ns_"):
		return LowerIsBetter
	default:
		return LowerIsBetter
	}
}

// ParseDirection accepts "higher"/"lower" with or without the
// "-is-better" suffix.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "higher", "higher-is-better", "higher_is_better":
		return HigherIsBetter, true
	case "lower", "lower-is-better", "lower_is_better":
		return LowerIsBetter, true
	}
	return LowerIsBetter, false
}
