package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/josefbacik/fsperf/internal/config"
)

const sampleYAML = `main:
  directory: /mnt/test
  results: out
  database: runs.db
  probe_timeout: 20s
  frag_tool: /usr/local/bin/frag
  disabled:
    - untarfirefox
    - dbench60
  tracing:
    endpoint: localhost:4317
    protocol: http
    insecure: true
    sample_rate: 0.5
sections:
  btrfs:
    device: /dev/nvme0n1
    mkfs: mkfs.btrfs -f
    mount: mount -o noatime
    iosched: none
    readpolicy: pid
  xfs:
    device: /dev/nvme1n1
    mkfs: mkfs.xfs -f
    mount: mount
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfigFileYAML(t *testing.T) {
	path := writeConfig(t, "local.yaml", sampleYAML)

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Directory != "/mnt/test" {
		t.Errorf("Directory = %q, want /mnt/test", cfg.Directory)
	}
	if cfg.Results != "out" {
		t.Errorf("Results = %q, want out", cfg.Results)
	}
	if cfg.Database != "runs.db" {
		t.Errorf("Database = %q, want runs.db", cfg.Database)
	}
	if cfg.ProbeTimeout != 20*time.Second {
		t.Errorf("ProbeTimeout = %s, want 20s", cfg.ProbeTimeout)
	}
	if cfg.FragTool != "/usr/local/bin/frag" {
		t.Errorf("FragTool = %q", cfg.FragTool)
	}
	if !cfg.IsDisabled("dbench60") || cfg.IsDisabled("diorandread") {
		t.Errorf("Disabled = %v", cfg.Disabled)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.Protocol != "http" || !cfg.Tracing.Insecure {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing.SampleRate = %g, want 0.5", cfg.Tracing.SampleRate)
	}

	btrfs, ok := cfg.Sections["btrfs"]
	if !ok {
		t.Fatalf("Sections = %v, want btrfs", cfg.SectionNames())
	}
	want := config.Section{
		Name:       "btrfs",
		Device:     "/dev/nvme0n1",
		Mkfs:       "mkfs.btrfs -f",
		Mount:      "mount -o noatime",
		IOSched:    "none",
		ReadPolicy: "pid",
	}
	if btrfs != want {
		t.Errorf("Sections[btrfs] = %+v, want %+v", btrfs, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "local.yaml", "main:\n  directory: /mnt/test\nsections:\n  dev:\n    device: /dev/sdb\n")

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Results != config.DefaultResults {
		t.Errorf("Results = %q, want %q", cfg.Results, config.DefaultResults)
	}
	if cfg.Database != config.DefaultDatabase {
		t.Errorf("Database = %q, want %q", cfg.Database, config.DefaultDatabase)
	}
	if cfg.ProbeTimeout != config.DefaultProbeTimeout {
		t.Errorf("ProbeTimeout = %s, want %s", cfg.ProbeTimeout, config.DefaultProbeTimeout)
	}
	if cfg.Purpose != config.DefaultPurpose {
		t.Errorf("Purpose = %q, want %q", cfg.Purpose, config.DefaultPurpose)
	}
	if cfg.Tracing.Enabled() && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		t.Errorf("Tracing.Enabled() = true without an endpoint")
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %g, want 1", cfg.Tracing.SampleRate)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	path := writeConfig(t, "local.json", `{
		"main": {"directory": "/mnt/json", "probe_timeout": 5},
		"sections": {"nvme": {"device": "/dev/nvme0n1", "mount": "mount"}}
	}`)

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Directory != "/mnt/json" {
		t.Errorf("Directory = %q, want /mnt/json", cfg.Directory)
	}
	if cfg.ProbeTimeout != 5*time.Second {
		t.Errorf("ProbeTimeout = %s, want 5s", cfg.ProbeTimeout)
	}
	if cfg.Sections["nvme"].Mount != "mount" {
		t.Errorf("Sections[nvme] = %+v", cfg.Sections["nvme"])
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "local.yaml", sampleYAML)

	cfg, err := config.NewLoader().Load([]string{
		"--config", path,
		"--section", "xfs",
		"--purpose", "patched",
		"--test", "diorandread,dbench60",
		"--oneoff",
		"--log-level", "DEBUG",
		"--database", "/tmp/other.db",
		"--threshold", "elapsed < 100",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Section != "xfs" {
		t.Errorf("Section = %q, want xfs", cfg.Section)
	}
	if cfg.Purpose != "patched" {
		t.Errorf("Purpose = %q, want patched", cfg.Purpose)
	}
	if strings.Join(cfg.Tests, ",") != "diorandread,dbench60" {
		t.Errorf("Tests = %v", cfg.Tests)
	}
	if !cfg.OneOff {
		t.Errorf("OneOff = false, want true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Database != "/tmp/other.db" {
		t.Errorf("Database = %q, want /tmp/other.db", cfg.Database)
	}
	if len(cfg.Thresholds) != 1 || cfg.Thresholds[0] != "elapsed < 100" {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}

	secs, err := cfg.SelectedSections()
	if err != nil {
		t.Fatalf("SelectedSections() error = %v", err)
	}
	if len(secs) != 1 || secs[0].Name != "xfs" {
		t.Errorf("SelectedSections() = %+v, want only xfs", secs)
	}
}

func TestSelectedSectionsDefaultsToAllSorted(t *testing.T) {
	cfg := config.Config{Sections: map[string]config.Section{
		"xfs":   {Name: "xfs", Device: "/dev/b"},
		"btrfs": {Name: "btrfs", Device: "/dev/a"},
	}}
	secs, err := cfg.SelectedSections()
	if err != nil {
		t.Fatalf("SelectedSections() error = %v", err)
	}
	if len(secs) != 2 || secs[0].Name != "btrfs" || secs[1].Name != "xfs" {
		t.Errorf("SelectedSections() = %+v", secs)
	}

	cfg.Section = "ext4"
	if _, err := cfg.SelectedSections(); err == nil {
		t.Errorf("SelectedSections() with unknown section: expected error")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("Load() with missing file: expected error")
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Directory:    "/mnt/test",
			Results:      "results",
			Database:     "fsperf.db",
			ProbeTimeout: time.Second,
			Purpose:      "default",
			Sections:     map[string]config.Section{"dev": {Name: "dev", Device: "/dev/sdb"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		issue  string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"missing directory", func(c *config.Config) { c.Directory = " " }, "main.directory is required"},
		{"zero probe timeout", func(c *config.Config) { c.ProbeTimeout = 0 }, "probe_timeout"},
		{"section without device", func(c *config.Config) {
			c.Sections["bare"] = config.Section{Name: "bare"}
		}, "sections.bare: device is required"},
		{"no sections", func(c *config.Config) { c.Sections = nil }, "at least one device section"},
		{"unknown selected section", func(c *config.Config) { c.Section = "nope" }, `section "nope"`},
		{"bad tracing protocol", func(c *config.Config) { c.Tracing.Protocol = "udp" }, "tracing.protocol"},
		{"bad sample rate", func(c *config.Config) { c.Tracing.SampleRate = 2 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.issue == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			found := false
			for _, issue := range verr.Issues() {
				if strings.Contains(issue, tt.issue) {
					found = true
				}
			}
			if !found {
				t.Errorf("Issues() = %v, want one containing %q", verr.Issues(), tt.issue)
			}
		})
	}
}
