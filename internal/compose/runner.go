package compose

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Runner executes CLI commands for the driver. The indirection exists so
// tests can script outcomes without a docker installation.
type Runner interface {
	// Run executes name args... in dir (empty dir means inherit) and
	// waits. stdout and stderr come back separately; err is the exit
	// error, if any.
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
	// Stream launches name args... and returns a live line stream of its
	// combined output. The subprocess is always reaped, even when the
	// consumer goes away; cancelling ctx terminates it.
	Stream(ctx context.Context, dir, name string, args ...string) (*Stream, error)
}

// Stream is a finite, non-restartable sequence of output lines from a
// subprocess. Lines closes when the subprocess exits; Err is meaningful
// only after that.
type Stream struct {
	lines chan string

	mu  sync.Mutex
	err error
}

// Lines yields output as it is produced. Nothing is buffered ahead of the
// consumer beyond the subprocess's own line buffering.
func (s *Stream) Lines() <-chan string { return s.lines }

// Err reports how the subprocess ended. Valid once Lines is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// NewStaticStream returns an already-produced stream; test scaffolding.
func NewStaticStream(lines []string, err error) *Stream {
	s := &Stream{lines: make(chan string, len(lines))}
	for _, l := range lines {
		s.lines <- l
	}
	s.setErr(err)
	close(s.lines)
	return s
}

// ExecRunner runs real subprocesses.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (ExecRunner) Stream(ctx context.Context, dir, name string, args ...string) (*Stream, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	s := &Stream{lines: make(chan string)}

	// Reap the subprocess no matter what the consumer does. Closing the
	// write end unblocks the scanner below.
	go func() {
		s.setErr(cmd.Wait())
		_ = pw.Close()
	}()

	go func() {
		defer close(s.lines)
		defer pr.Close()

		sc := bufio.NewScanner(pr)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case s.lines <- sc.Text():
			case <-ctx.Done():
				// Consumer detached: keep draining so the process
				// can exit and be reaped.
			}
		}
	}()

	return s, nil
}
