package workload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/josefbacik/fsperf/internal/metrics"
)

// FioMetrics are the flattened fio fields kept per run.
var FioMetrics = []string{
	"read_io_bytes",
	"elapsed",
	"sys_cpu",
	"read_lat_ns_min",
	"read_lat_ns_max",
	"read_clat_ns_p50",
	"read_clat_ns_p99",
	"read_iops",
	"read_io_kbytes",
	"read_bw_bytes",
	"write_lat_ns_min",
	"write_lat_ns_max",
	"write_iops",
	"write_io_kbytes",
	"write_bw_bytes",
	"write_clat_ns_p50",
	"write_clat_ns_p99",
}

var (
	fioIOTypes   = []string{"read", "write", "trim"}
	fioNestedLat = map[string]bool{"lat_ns": true, "clat_ns": true}
)

// Fio runs fio with JSON output and records its job results.
type Fio struct {
	Name string
	// Args are appended after the fixed options; a job file path or
	// --name/--rw style options.
	Args string
}

// Command returns the fio invocation for directory and results dir.
func (f Fio) Command(directory, results string) string {
	return fmt.Sprintf("fio --output-format=json --output=%s --alloc-size 98304 --allrandrepeat=1 --directory %s %s",
		f.outputPath(results), directory, f.Args)
}

func (f Fio) outputPath(results string) string {
	return filepath.Join(results, f.Name+".json")
}

func (f Fio) Run(ctx context.Context, p Params) ([]metrics.SampleGroup, error) {
	if _, err := p.Exec.Run(ctx, f.Command(p.Directory, p.Results)); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.outputPath(p.Results))
	if err != nil {
		return nil, fmt.Errorf("read fio output: %w", err)
	}
	values, err := DecodeFio(raw)
	if err != nil {
		return nil, err
	}
	return []metrics.SampleGroup{{Kind: metrics.KindFio, Values: values}}, nil
}

// DecodeFio flattens fio's JSON output into FioMetrics. Per-direction
// fields collapse to <dir>_<field>, latency blocks to <dir>_<lat>_<stat>
// and percentiles to <dir>_<lat>_p<N>. Multiple jobs are merged.
func DecodeFio(raw []byte) (map[string]float64, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("fio output is not valid JSON")
	}
	jobs := gjson.GetBytes(raw, "jobs")
	if !jobs.IsArray() || len(jobs.Array()) == 0 {
		return nil, errors.New("fio output has no jobs")
	}

	merged := make(map[string]float64)
	for i, job := range jobs.Array() {
		flat := flattenFioJob(job)
		for _, name := range FioMetrics {
			v, ok := flat[name]
			if !ok {
				continue
			}
			if i == 0 {
				merged[name] = v
				continue
			}
			merged[name] = mergeFio(name, merged[name], v)
		}
	}
	for _, name := range FioMetrics {
		if _, ok := merged[name]; !ok {
			merged[name] = 0
		}
	}
	return merged, nil
}

func flattenFioJob(job gjson.Result) map[string]float64 {
	flat := make(map[string]float64)
	job.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if !isIOType(k) {
			if value.Type == gjson.Number {
				flat[k] = value.Float()
			}
			return true
		}
		value.ForEach(func(field, v gjson.Result) bool {
			f := field.String()
			if fioNestedLat[f] {
				v.ForEach(func(stat, sv gjson.Result) bool {
					s := stat.String()
					if s == "percentile" {
						sv.ForEach(func(pct, pv gjson.Result) bool {
							flat[fmt.Sprintf("%s_%s_p%s", k, f, percentileKey(pct.String()))] = pv.Float()
							return true
						})
						return true
					}
					if sv.Type == gjson.Number {
						flat[k+"_"+f+"_"+s] = sv.Float()
					}
					return true
				})
				return true
			}
			if v.Type == gjson.Number {
				flat[k+"_"+f] = v.Float()
			}
			return true
		})
		return true
	})
	return flat
}

func isIOType(key string) bool {
	for _, t := range fioIOTypes {
		if key == t {
			return true
		}
	}
	return false
}

// percentileKey turns "50.000000" into "50" and "99.900000" into "99.9".
func percentileKey(raw string) string {
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// mergeFio combines one metric across jobs: throughput and volume add up,
// latencies and elapsed time take the worst job.
func mergeFio(name string, acc, v float64) float64 {
	switch {
	case strings.Contains(name, "_lat_"), strings.Contains(name, "_clat_"), name == "elapsed":
		if v > acc {
			return v
		}
		return acc
	default:
		return acc + v
	}
}
