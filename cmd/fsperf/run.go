package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/josefbacik/fsperf/internal/collect"
	"github.com/josefbacik/fsperf/internal/command"
	"github.com/josefbacik/fsperf/internal/config"
	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/output"
	"github.com/josefbacik/fsperf/internal/runner"
	"github.com/josefbacik/fsperf/internal/stats"
	"github.com/josefbacik/fsperf/internal/store"
	"github.com/josefbacik/fsperf/internal/suite"
	"github.com/josefbacik/fsperf/internal/threshold"
	"github.com/josefbacik/fsperf/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

func runTests(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	tests := suite.Default()
	if err := checkTestNames(tests, cfg.Tests); err != nil {
		return err
	}
	sections, err := cfg.SelectedSections()
	if err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	db, err := store.OpenSQLite(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rec := metrics.NewRecorder()
	exec := command.New(log)
	engine := stats.New(stats.Options{UseFiltered: cfg.UseFiltered})
	sel := runner.Selection{Only: cfg.Tests, Disabled: cfg.Disabled, OneOff: cfg.OneOff}

	var progress io.Writer
	if !cfg.JSONOutput {
		progress = cmd.ErrOrStderr()
	}

	ok := true
	var summaries []sectionSummary
	for _, sec := range sections {
		r := runner.New(runner.Options{
			Section:      sec,
			Directory:    cfg.Directory,
			Results:      cfg.Results,
			Purpose:      cfg.Purpose,
			LockDir:      cfg.LockDir,
			Exec:         exec,
			Store:        db,
			Collectors:   collect.Default(exec, cfg.FragTool),
			ProbeTimeout: cfg.ProbeTimeout,
			Engine:       engine,
			Thresholds:   thresholds,
			BaselineAge:  cfg.BaselineAge,
			Recorder:     rec,
			Tracer:       provider.Tracer(),
			Progress:     progress,
			Log:          log,
		})
		log.WithFields(logrus.Fields{"section": sec.Name, "purpose": cfg.Purpose}).Info("running section")
		sum, err := r.RunAll(ctx, tests, sel)
		summaries = append(summaries, newSectionSummary(sec.Name, sum))
		if !cfg.JSONOutput {
			printSummary(cmd.OutOrStdout(), sec.Name, sum)
		}
		if err != nil {
			return err
		}
		ok = ok && sum.OK()
	}

	if err := rec.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.WithError(err).Warn("writing metrics textfile failed")
	}
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(cmd.OutOrStdout(), summaries); err != nil {
			return err
		}
	}
	if !ok {
		return errNotOK
	}
	return nil
}

func checkTestNames(tests []runner.Test, names []string) error {
	for _, name := range names {
		if _, ok := suite.Find(tests, name); !ok {
			return fmt.Errorf("unknown test %q (see 'fsperf list')", name)
		}
	}
	return nil
}

// reportView is the exported form of one attempt.
type reportView struct {
	Test       string             `json:"test"`
	Outcome    string             `json:"outcome"`
	State      string             `json:"state"`
	Elapsed    float64            `json:"elapsed_seconds"`
	Error      string             `json:"error,omitempty"`
	Run        *metrics.Run       `json:"run,omitempty"`
	Verdict    *stats.TestVerdict `json:"verdict,omitempty"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

type sectionSummary struct {
	Section string       `json:"section"`
	Reports []reportView `json:"reports"`
	Skipped []string     `json:"skipped,omitempty"`
	OK      bool         `json:"ok"`
}

func newSectionSummary(section string, sum runner.Summary) sectionSummary {
	out := sectionSummary{Section: section, Skipped: sum.Skipped, OK: sum.OK()}
	for _, rep := range sum.Reports {
		v := reportView{
			Test:       rep.Test,
			Outcome:    string(rep.Outcome),
			State:      rep.State.String(),
			Elapsed:    rep.Elapsed.Seconds(),
			Run:        rep.Run,
			Verdict:    rep.Verdict,
			Thresholds: rep.Thresholds,
		}
		if rep.Err != nil {
			v.Error = rep.Err.Error()
		}
		out.Reports = append(out.Reports, v)
	}
	return out
}

func printSummary(w io.Writer, section string, sum runner.Summary) {
	for _, rep := range sum.Reports {
		if rep.Run != nil {
			output.PrintReport(w, rep.Run)
		}
		if rep.Verdict != nil {
			output.WriteVerdict(w, *rep.Verdict, output.TableOptions{
				Title: fmt.Sprintf("%s vs baseline", rep.Test),
				Color: true,
			})
		}
		output.WriteThresholds(w, rep.Thresholds)
		if rep.Err != nil {
			fmt.Fprintf(w, "%s: %s: %v\n", rep.Test, rep.Outcome, rep.Err)
		}
	}
	fmt.Fprintf(w, "\n[%s] passed %d, failed %d, regressed %d, not run %d, skipped %d\n",
		section, len(sum.Passed), len(sum.Failed), len(sum.Regressed), len(sum.NotRun), len(sum.Skipped))
}

func cleanPurposes(cmd *cobra.Command, purposes []string) error {
	cfg, err := config.NewLoader().LoadFlags(cmd.Flags())
	if err != nil {
		return err
	}
	db, err := store.OpenSQLite(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.DeleteByPurpose(cmd.Context(), purposes...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs\n", n)
	return nil
}
