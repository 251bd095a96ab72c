package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// ErrNoConfigFile is returned when neither --config nor a default config
// file is available.
var ErrNoConfigFile = errors.New("no config file: pass --config")

// DefaultConfigFile is read when --config is not given.
const DefaultConfigFile = "local.yaml"

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and the configuration file to produce a Config.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.LoadFlags(flagSet)
}

// LoadFlags builds a Config from an already parsed flag set carrying the
// flags registered by RegisterFlags.
func (Loader) LoadFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath := DefaultConfigFile
	if f := flagSet.Lookup("config"); f != nil && f.Value.String() != "" {
		configPath = f.Value.String()
	}

	cfgViper := viper.New()
	cfgViper.SetConfigFile(configPath)
	if err := cfgViper.ReadInConfig(); err != nil {
		if !flagSet.Changed("config") {
			return nil, fmt.Errorf("%w: %v", ErrNoConfigFile, err)
		}
		return nil, err
	}

	settings := cfgViper.AllSettings()

	cfg := &Config{
		ConfigFile:   configPath,
		Results:      DefaultResults,
		Database:     DefaultDatabase,
		LockDir:      DefaultLockDir,
		ProbeTimeout: DefaultProbeTimeout,
		FragTool:     DefaultFragTool,
		BaselineAge:  DefaultBaselineAge,
		Purpose:      DefaultPurpose,
		LogLevel:     "info",
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		Sections:     map[string]Section{},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Directory = strings.TrimSpace(cfg.Directory)
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "main"); ok {
		mainSettings, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("main: %w", err)
		}
		if err := applyMainSettings(cfg, mainSettings); err != nil {
			return fmt.Errorf("main: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "sections"); ok {
		sections, err := parseSections(raw)
		if err != nil {
			return fmt.Errorf("sections: %w", err)
		}
		for name, sec := range sections {
			cfg.Sections[name] = sec
		}
	}
	return nil
}

func applyMainSettings(cfg *Config, settings map[string]interface{}) error {
	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"directory"}, &cfg.Directory},
		{[]string{"results"}, &cfg.Results},
		{[]string{"database"}, &cfg.Database},
		{[]string{"lock_dir", "lockdir", "lock-dir"}, &cfg.LockDir},
		{[]string{"frag_tool", "fragtool", "frag-tool"}, &cfg.FragTool},
		{[]string{"metrics_textfile", "metrics-textfile"}, &cfg.MetricsTextfile},
	}
	for _, s := range strs {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "probe_timeout", "probe-timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("probe_timeout: %w", err)
		}
		cfg.ProbeTimeout = val
	}

	if raw, ok := lookupSetting(settings, "baseline_age", "baseline-age"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("baseline_age: %w", err)
		}
		cfg.BaselineAge = val
	}

	if raw, ok := lookupSetting(settings, "disabled"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("disabled: %w", err)
		}
		cfg.Disabled = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracingConfig(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tc
	}
	return nil
}

func parseSections(value interface{}) (map[string]Section, error) {
	raw, err := toStringKeyMap(value)
	if err != nil {
		return nil, err
	}
	sections := make(map[string]Section, len(raw))
	for name, v := range raw {
		settings, err := toStringKeyMap(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		sec, err := buildSection(name, settings)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		sections[name] = sec
	}
	return sections, nil
}

func buildSection(name string, settings map[string]interface{}) (Section, error) {
	sec := Section{Name: name}
	fields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"device"}, &sec.Device},
		{[]string{"mkfs"}, &sec.Mkfs},
		{[]string{"mount"}, &sec.Mount},
		{[]string{"iosched"}, &sec.IOSched},
		{[]string{"readpolicy", "read_policy"}, &sec.ReadPolicy},
	}
	for _, f := range fields {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return Section{}, fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = strings.TrimSpace(val)
	}
	return sec, nil
}

func parseTracingConfig(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tc := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	return tc, nil
}
