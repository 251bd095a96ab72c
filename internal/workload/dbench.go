package workload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/josefbacik/fsperf/internal/metrics"
)

// Dbench runs dbench and records per-operation max latency and throughput.
type Dbench struct {
	Name string
	Args string
}

func (d Dbench) Run(ctx context.Context, p Params) ([]metrics.SampleGroup, error) {
	path := filepath.Join(p.Results, d.Name+".txt")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create dbench output: %w", err)
	}
	defer f.Close()

	cmd := fmt.Sprintf("dbench %s -D %s", d.Args, p.Directory)
	if err := p.Exec.RunTo(ctx, cmd, f); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind dbench output: %w", err)
	}
	values, err := ParseDbench(f)
	if err != nil {
		return nil, err
	}
	return []metrics.SampleGroup{{Kind: metrics.KindDbench, Values: values}}, nil
}

// ParseDbench reads the summary table that follows the dashed separator.
// Four-column rows are operations (name, count, avg, max) and record the
// max latency; the longer Throughput row records throughput.
func ParseDbench(r io.Reader) (map[string]float64, error) {
	values := make(map[string]float64)
	parsing := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !parsing {
			if strings.Contains(line, "----") {
				parsing = true
			}
			continue
		}
		fields := strings.Fields(line)
		switch {
		case len(fields) == 4:
			v, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				continue
			}
			values[strings.ToLower(fields[0])] = v
		case len(fields) > 4:
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				continue
			}
			values["throughput"] = v
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dbench output: %w", err)
	}
	if !parsing {
		return nil, errors.New("dbench output has no results table")
	}
	return values, nil
}
