// Package commandtest provides a scripted command.Executor for tests.
package commandtest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/josefbacik/fsperf/internal/command"
)

// Response is the scripted outcome for commands matching a prefix.
type Response struct {
	Output   string
	ExitCode int
	Err      error
}

// Recorder records every command it is asked to run and answers from a
// table of prefix-matched responses. Unmatched commands succeed with no
// output.
type Recorder struct {
	mu        sync.Mutex
	calls     []string
	responses []rule
}

type rule struct {
	prefix string
	resp   Response
	times  int // 0 means every call
}

var _ command.Executor = (*Recorder)(nil)

// On scripts the response for every command starting with prefix.
func (r *Recorder) On(prefix string, resp Response) *Recorder {
	return r.OnN(prefix, 0, resp)
}

// OnN scripts the response for the next n commands starting with prefix.
func (r *Recorder) OnN(prefix string, n int, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, rule{prefix: prefix, resp: resp, times: n})
	return r
}

// Fail scripts a non-zero exit for commands starting with prefix.
func (r *Recorder) Fail(prefix string, code int) *Recorder {
	return r.On(prefix, Response{ExitCode: code, Output: "scripted failure"})
}

func (r *Recorder) Run(ctx context.Context, cmd string) (string, error) {
	var sb strings.Builder
	err := r.RunTo(ctx, cmd, &sb)
	return sb.String(), err
}

func (r *Recorder) RunTo(ctx context.Context, cmd string, w io.Writer) error {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	resp, ok := r.match(cmd)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &command.Error{Cmd: cmd, ExitCode: -1, Err: err}
	}
	if !ok {
		return nil
	}
	if w != nil && resp.Output != "" {
		_, _ = io.WriteString(w, resp.Output)
	}
	if resp.Err != nil {
		return resp.Err
	}
	if resp.ExitCode != 0 {
		return &command.Error{
			Cmd:      cmd,
			ExitCode: resp.ExitCode,
			Output:   resp.Output,
			Err:      fmt.Errorf("exit status %d", resp.ExitCode),
		}
	}
	return nil
}

func (r *Recorder) match(cmd string) (Response, bool) {
	for i := len(r.responses) - 1; i >= 0; i-- {
		rl := &r.responses[i]
		if !strings.HasPrefix(cmd, rl.prefix) {
			continue
		}
		if rl.times < 0 {
			continue
		}
		if rl.times > 0 {
			rl.times--
			if rl.times == 0 {
				rl.times = -1
			}
		}
		return rl.resp, true
	}
	return Response{}, false
}

// Calls returns a copy of every command run so far, in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many commands started with prefix.
func (r *Recorder) Count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
