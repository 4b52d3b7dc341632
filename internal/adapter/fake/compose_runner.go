package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"vulnlab/internal/compose"
)

// RunResult scripts one Run outcome.
type RunResult struct {
	Stdout string
	Stderr string
	Err    error
}

// ComposeRunner is a scripted compose.Runner. Outcomes are keyed by the
// full command line; unscripted commands succeed with empty output so
// incidental calls (style probes, ps polls) need no setup.
type ComposeRunner struct {
	CallRecorder
	mu      sync.Mutex
	results map[string]RunResult
	streams map[string]*compose.Stream

	RunErr func(ctx context.Context, dir, name string, args ...string) error
}

// NewComposeRunner creates a runner with nothing scripted.
func NewComposeRunner() *ComposeRunner {
	return &ComposeRunner{
		results: make(map[string]RunResult),
		streams: make(map[string]*compose.Stream),
	}
}

func commandKey(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// Script sets the outcome for a command line, e.g.
// Script("docker compose up -d", RunResult{...}).
func (r *ComposeRunner) Script(command string, res RunResult) {
	r.mu.Lock()
	r.results[command] = res
	r.mu.Unlock()
}

// ScriptStream sets the stream returned for a command line.
func (r *ComposeRunner) ScriptStream(command string, lines []string, err error) {
	r.mu.Lock()
	r.streams[command] = compose.NewStaticStream(lines, err)
	r.mu.Unlock()
}

func (r *ComposeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	r.record("Run", dir, commandKey(name, args))
	if r.RunErr != nil {
		if err := r.RunErr(ctx, dir, name, args...); err != nil {
			return "", "", err
		}
	}
	r.mu.Lock()
	res := r.results[commandKey(name, args)]
	r.mu.Unlock()
	return res.Stdout, res.Stderr, res.Err
}

func (r *ComposeRunner) Stream(ctx context.Context, dir, name string, args ...string) (*compose.Stream, error) {
	r.record("Stream", dir, commandKey(name, args))
	r.mu.Lock()
	s, ok := r.streams[commandKey(name, args)]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no stream scripted for %q", commandKey(name, args))
	}
	return s, nil
}
