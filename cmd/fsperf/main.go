package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/josefbacik/fsperf/internal/config"
)

// errNotOK is returned when a test failed or regressed so the process
// exits non-zero without printing anything more.
var errNotOK = errors.New("tests failed or regressed")

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		if !errors.Is(err, errNotOK) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "fsperf",
		Short:         "Filesystem performance regression harness",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runTests,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	config.RegisterFlags(root)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the selected tests and check them against their baselines",
			Args:  cobra.NoArgs,
			RunE:  runTests,
		},
		newCompareCommand(),
		&cobra.Command{
			Use:   "clean PURPOSE...",
			Short: "Delete every recorded run with one of the purposes",
			Args:  cobra.MinimumNArgs(1),
			RunE:  cleanPurposes,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the known tests",
			Args:  cobra.NoArgs,
			RunE:  listTests,
		},
	)
	return root
}

// loadConfig reads the config file named by the command's flags and
// validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader().LoadFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}
