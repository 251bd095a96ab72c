package suite

import (
	"context"
	"path/filepath"

	"github.com/josefbacik/fsperf/internal/metrics"
	"github.com/josefbacik/fsperf/internal/runner"
	"github.com/josefbacik/fsperf/internal/workload"
)

const (
	firefoxTarball = "firefox-87.0b5.source.tar.xz"
	firefoxURL     = "https://archive.mozilla.org/pub/firefox/releases/87.0b5/source/" + firefoxTarball
)

// UntarFirefox times extracting the firefox source tree. The tarball is
// downloaded once into Cache.
type UntarFirefox struct {
	// Cache is where the tarball is kept between runs, the working
	// directory when empty.
	Cache string
}

func (u *UntarFirefox) Name() string        { return "untarfirefox" }
func (u *UntarFirefox) Functions() []string { return nil }
func (u *UntarFirefox) Flags() runner.Flags { return runner.Flags{} }

func (u *UntarFirefox) tarball() string {
	return filepath.Join(u.Cache, firefoxTarball)
}

func (u *UntarFirefox) Setup(ctx context.Context, env runner.Env) error {
	cmd := "wget -nc " + firefoxURL
	if u.Cache != "" {
		cmd = "wget -nc -P " + u.Cache + " " + firefoxURL
	}
	_, err := env.Exec.Run(ctx, cmd)
	return err
}

func (u *UntarFirefox) Execute(ctx context.Context, env runner.Env, run *metrics.Run) error {
	w := workload.Timed{Command: "tar -xf " + u.tarball() + " -C " + workload.DirectoryPlaceholder}
	return execute(ctx, w, env, env.Directory, run)
}

func (u *UntarFirefox) Teardown(context.Context, runner.Env) error { return nil }
