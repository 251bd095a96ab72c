// Package command supervises external process invocations for the harness.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Shell is the interpreter used for every command string. Device, mkfs and
// mount settings are shell fragments and are passed through verbatim.
const Shell = "/bin/sh"

// maxErrorOutput caps how much captured output an Error carries.
const maxErrorOutput = 4096

// Error reports an external process that exited with a non-zero status.
type Error struct {
	Cmd      string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("command %q failed", e.Cmd)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if e.Err != nil && e.ExitCode < 0 {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsFailure reports whether err is, or wraps, a command failure.
func IsFailure(err error) bool {
	var cmdErr *Error
	return errors.As(err, &cmdErr)
}

// Executor runs command strings. *Runner is the production implementation;
// tests substitute recorders.
type Executor interface {
	Run(ctx context.Context, cmd string) (string, error)
	RunTo(ctx context.Context, cmd string, w io.Writer) error
}

var _ Executor = (*Runner)(nil)

// Runner executes commands through the shell and logs each invocation.
type Runner struct {
	log logrus.FieldLogger
}

// New creates a Runner. A nil logger discards output.
func New(log logrus.FieldLogger) *Runner {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Runner{log: log.WithField("component", "command")}
}

// Run executes cmd and returns its combined stdout and stderr.
func (r *Runner) Run(ctx context.Context, cmd string) (string, error) {
	var buf bytes.Buffer
	err := r.RunTo(ctx, cmd, &buf)
	return buf.String(), err
}

// RunTo executes cmd with stdout and stderr streamed to w. On failure the
// returned *Error carries the tail of the output when w is a *bytes.Buffer.
func (r *Runner) RunTo(ctx context.Context, cmd string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return fmt.Errorf("empty command")
	}
	if w == nil {
		w = io.Discard
	}

	r.log.WithField("cmd", cmd).Info("running cmd")

	tail := &tailBuffer{limit: maxErrorOutput}
	c := exec.CommandContext(ctx, Shell, "-c", cmd)
	c.Stdout = io.MultiWriter(w, tail)
	c.Stderr = c.Stdout

	err := c.Run()
	if err == nil {
		return nil
	}

	failure := &Error{Cmd: cmd, ExitCode: -1, Output: tail.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		failure.Err = errors.Join(err, ctxErr)
	}
	r.log.WithFields(logrus.Fields{
		"cmd":       cmd,
		"exit_code": failure.ExitCode,
	}).Warn("command failed")
	return failure
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
