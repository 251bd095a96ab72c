package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/josefbacik/fsperf/internal/config"
	"github.com/josefbacik/fsperf/internal/output"
	"github.com/josefbacik/fsperf/internal/runner"
	"github.com/josefbacik/fsperf/internal/stats"
	"github.com/josefbacik/fsperf/internal/store"
	"github.com/josefbacik/fsperf/internal/suite"
)

func newCompareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare BASELINE CURRENT",
		Short: "Compare the average results of two purposes",
		Long: "Compare averages every successful run recorded under each purpose, per " +
			"section and test, and prints how CURRENT moved against BASELINE.",
		Args: cobra.ExactArgs(2),
		RunE: compareCommand,
	}
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	return cmd
}

// comparison is one section and test compared across two purposes.
type comparison struct {
	Section string      `json:"section" yaml:"section"`
	Test    string      `json:"test" yaml:"test"`
	Rows    []stats.Row `json:"rows" yaml:"rows"`
}

func compareCommand(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.JSONOutput && !cmd.Flags().Changed("format") {
		format = "json"
	}
	switch format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	db, err := store.OpenSQLite(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	comparisons, err := compare(cmd.Context(), db, cfg, suite.Default(), args[0], args[1])
	if err != nil {
		return err
	}
	return writeComparisons(cmd.OutOrStdout(), comparisons, format, args[0], args[1])
}

func compare(ctx context.Context, db store.Store, cfg *config.Config, tests []runner.Test, a, b string) ([]comparison, error) {
	sections, err := cfg.SelectedSections()
	if err != nil {
		return nil, err
	}
	engine := stats.New(stats.Options{UseFiltered: cfg.UseFiltered})
	var since time.Time
	if cfg.BaselineAge > 0 {
		since = time.Now().Add(-cfg.BaselineAge)
	}

	average := func(section, test, purpose string) (map[string]stats.Baseline, error) {
		runs, err := db.Query(ctx, store.Filter{Name: test, Config: section, Purpose: purpose, Since: since})
		if err != nil {
			return nil, err
		}
		return engine.Average(runs), nil
	}

	var out []comparison
	for _, sec := range sections {
		for _, t := range tests {
			if len(cfg.Tests) > 0 && !slices.Contains(cfg.Tests, t.Name()) {
				continue
			}
			base, err := average(sec.Name, t.Name(), a)
			if err != nil {
				return nil, err
			}
			cur, err := average(sec.Name, t.Name(), b)
			if err != nil {
				return nil, err
			}
			rows := engine.Compare(base, cur)
			if len(rows) == 0 {
				continue
			}
			out = append(out, comparison{Section: sec.Name, Test: t.Name(), Rows: rows})
		}
	}
	return out, nil
}

func writeComparisons(w io.Writer, comparisons []comparison, format, a, b string) error {
	switch format {
	case "json":
		return output.PrintJSONReport(w, comparisons)
	case "yaml":
		return output.PrintYAMLReport(w, comparisons)
	}
	if len(comparisons) == 0 {
		fmt.Fprintf(w, "no runs to compare between %q and %q\n", a, b)
		return nil
	}
	for _, c := range comparisons {
		output.WriteComparison(w, c.Rows, output.TableOptions{
			Title: fmt.Sprintf("%s/%s: %s vs %s", c.Section, c.Test, a, b),
			Color: true,
		})
	}
	return nil
}
