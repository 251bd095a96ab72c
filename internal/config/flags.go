package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.PersistentFlags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fsperf",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "C", "", "Path to configuration file (YAML, TOML or JSON)")
	flags.StringP("section", "c", "", "Device section to run against (default: all sections)")
	flags.StringP("purpose", "p", DefaultPurpose, "Purpose label recorded with each run")
	flags.StringSliceP("test", "t", nil, "Only run the named tests (repeatable)")
	flags.Bool("oneoff", false, "Also run one-off tests")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("database", "", "Path to the results database")
	flags.String("directory", "", "Mount point the tests run in")
	flags.Bool("json-output", false, "Emit JSON formatted verdicts")
	flags.Bool("filtered", false, "Use outlier-filtered baselines for regression checks")
	flags.StringArray("threshold", nil, "Absolute metric limits (repeatable, e.g. 'diorandread:read_clat_ns_p99 < 2000000')")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("section") {
		val, err := fs.GetString("section")
		if err != nil {
			return err
		}
		cfg.Section = strings.TrimSpace(val)
	}
	if fs.Lookup("purpose") != nil {
		val, err := fs.GetString("purpose")
		if err != nil {
			return err
		}
		cfg.Purpose = strings.TrimSpace(val)
	}
	if fs.Changed("test") {
		val, err := fs.GetStringSlice("test")
		if err != nil {
			return err
		}
		cfg.Tests = val
	}
	if fs.Changed("oneoff") {
		val, err := fs.GetBool("oneoff")
		if err != nil {
			return err
		}
		cfg.OneOff = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("database") {
		val, err := fs.GetString("database")
		if err != nil {
			return err
		}
		cfg.Database = strings.TrimSpace(val)
	}
	if fs.Changed("directory") {
		val, err := fs.GetString("directory")
		if err != nil {
			return err
		}
		cfg.Directory = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("filtered") {
		val, err := fs.GetBool("filtered")
		if err != nil {
			return err
		}
		cfg.UseFiltered = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = append(cfg.Thresholds, val...)
	}
	return nil
}
