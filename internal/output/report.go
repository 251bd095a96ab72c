package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/stats"
	"github.com/josefbacik/fsperf/internal/threshold"
)

// PrintReport outputs a human-readable summary of one run.
func PrintReport(w io.Writer, run *metrics.Run) {
	status := "ok"
	if run.Failed {
		status = "FAILED"
	}
	fmt.Fprintf(w, "\n--- %s (%s) ---\n", run.Name, status)
	fmt.Fprintf(w, "Run:               %s\n", run.ULID)
	fmt.Fprintf(w, "Section:           %s\n", run.Config)
	fmt.Fprintf(w, "Purpose:           %s\n", run.Purpose)
	fmt.Fprintf(w, "Kernel:            %s\n", run.Kernel)
	fmt.Fprintf(w, "Time:              %s\n", run.Time.Format("2006-01-02 15:04:05 MST"))

	for _, kind := range metrics.Kinds {
		groups := run.GroupsOf(kind)
		if len(groups) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", kind)
		for _, g := range groups {
			indent := "  "
			if g.Function != "" {
				fmt.Fprintf(w, "  %s:\n", g.Function)
				indent = "    "
			}
			keys := make([]string, 0, len(g.Values))
			for k := range g.Values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "%s%s: %s\n", indent, k, formatValue(g.Values[k]))
			}
		}
	}
}

// PrintJSONReport outputs v as indented JSON.
func PrintJSONReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintYAMLReport outputs v as YAML.
func PrintYAMLReport(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// TableOptions controls table rendering.
type TableOptions struct {
	Title string
	// Color marks the diff column green or red by verdict.
	Color bool
}

// WriteComparison renders an A/B comparison table.
func WriteComparison(w io.Writer, rows []stats.Row, opts TableOptions) {
	t := newTable(w, opts.Title)
	t.AppendHeader(table.Row{"Metric", "Baseline", "Current", "Stdev", "Diff"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Metric", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Baseline", Align: text.AlignRight},
		{Name: "Current", Align: text.AlignRight},
		{Name: "Stdev", Align: text.AlignRight},
		{Name: "Diff", Align: text.AlignRight},
	})

	regressed := 0
	for _, r := range rows {
		if r.Regressed {
			regressed++
		}
		t.AppendRow(table.Row{
			r.Metric,
			formatValue(r.Baseline),
			formatValue(r.Current),
			formatValue(r.Stdev),
			diffString(r.Diff, r.Regressed, opts.Color),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "regressed", fmt.Sprintf("%d/%d", regressed, len(rows))})
	t.Render()
}

// WriteVerdict renders a run's metrics against their baselines.
func WriteVerdict(w io.Writer, tv stats.TestVerdict, opts TableOptions) {
	t := newTable(w, opts.Title)
	t.AppendHeader(table.Row{"Metric", "Baseline", "Stdev", "Threshold", "Value", "Diff"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Metric", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Baseline", Align: text.AlignRight},
		{Name: "Stdev", Align: text.AlignRight},
		{Name: "Threshold", Align: text.AlignRight},
		{Name: "Value", Align: text.AlignRight},
		{Name: "Diff", Align: text.AlignRight},
	})
	for _, m := range tv.Metrics {
		name := m.Metric
		if m.Headline {
			name += " *"
		}
		t.AppendRow(table.Row{
			name,
			formatValue(m.Baseline.Mean),
			formatValue(m.Baseline.Stdev),
			formatValue(m.Threshold),
			formatValue(m.Value),
			diffString(stats.PctDiff(m.Baseline.Mean, m.Value), m.Regressed, opts.Color),
		})
	}
	status := "PASS"
	if tv.Regressed {
		status = "REGRESSED"
	}
	t.AppendFooter(table.Row{
		"headline regressions", "", "", "",
		fmt.Sprintf("%d (fail at %s)", tv.HeadlineRegressions, formatValue(tv.FailThreshold)),
		status,
	})
	t.Render()
}

// WriteThresholds prints one line per threshold result.
func WriteThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if title != "" {
		t.SetTitle(title)
	}
	t.SetStyle(table.StyleLight)
	return t
}

func diffString(diff float64, regressed, color bool) string {
	s := fmt.Sprintf("%.2f%%", diff)
	if !color {
		if regressed {
			return s + " !"
		}
		return s
	}
	if regressed {
		return text.FgRed.Sprint(s)
	}
	return text.FgGreen.Sprint(s)
}

func formatValue(v float64) string {
	if v == float64(int64(v)) && v < 1e15 && v > -1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
