package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"
)

const (
	DefaultResults      = "results"
	DefaultDatabase     = "fsperf-results.db"
	DefaultLockDir      = "/run/lock"
	DefaultProbeTimeout = 15 * time.Second
	DefaultFragTool     = "frag"
	DefaultPurpose      = "default"
	DefaultBaselineAge  = 365 * 24 * time.Hour
)

// Config is the merged result of the config file and command-line flags.
type Config struct {
	ConfigFile string

	// main section
	Directory       string
	Results         string
	Database        string
	LockDir         string
	ProbeTimeout    time.Duration
	FragTool        string
	MetricsTextfile string
	BaselineAge     time.Duration
	Disabled        []string
	Thresholds      []string
	Tracing         TracingConfig

	Sections map[string]Section

	// run selection
	Section     string
	Purpose     string
	Tests       []string
	OneOff      bool
	LogLevel    string
	JSONOutput  bool
	UseFiltered bool
}

// Section describes one device configuration tests can be run against.
type Section struct {
	Name       string
	Device     string
	Mkfs       string
	Mount      string
	IOSched    string
	ReadPolicy string
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Enabled reports whether an exporter endpoint is configured, either in the
// config file or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// IsDisabled reports whether the named test is on the disabled list.
func (c Config) IsDisabled(test string) bool {
	return slices.Contains(c.Disabled, test)
}

// SectionNames returns the configured section names in sorted order.
func (c Config) SectionNames() []string {
	names := make([]string, 0, len(c.Sections))
	for name := range c.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SelectedSections returns the section chosen with --section, or every
// section when none was chosen.
func (c Config) SelectedSections() ([]Section, error) {
	if c.Section != "" {
		sec, ok := c.Sections[c.Section]
		if !ok {
			return nil, fmt.Errorf("no section %q in %s", c.Section, c.ConfigFile)
		}
		return []Section{sec}, nil
	}
	names := c.SectionNames()
	out := make([]Section, 0, len(names))
	for _, name := range names {
		out = append(out, c.Sections[name])
	}
	return out, nil
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Directory) == "" {
		issues = append(issues, "main.directory is required")
	}
	if strings.TrimSpace(c.Results) == "" {
		issues = append(issues, "main.results must not be empty")
	}
	if strings.TrimSpace(c.Database) == "" {
		issues = append(issues, "main.database must not be empty")
	}
	if c.ProbeTimeout <= 0 {
		issues = append(issues, "main.probe_timeout must be greater than 0")
	}
	if c.BaselineAge < 0 {
		issues = append(issues, "main.baseline_age must not be negative")
	}
	if len(c.Sections) == 0 {
		issues = append(issues, "at least one device section is required")
	}
	for _, name := range c.SectionNames() {
		if strings.TrimSpace(c.Sections[name].Device) == "" {
			issues = append(issues, fmt.Sprintf("sections.%s: device is required", name))
		}
	}
	if c.Section != "" {
		if _, ok := c.Sections[c.Section]; !ok {
			issues = append(issues, fmt.Sprintf("section %q is not configured", c.Section))
		}
	}
	if strings.TrimSpace(c.Purpose) == "" {
		issues = append(issues, "purpose must not be empty")
	}
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
