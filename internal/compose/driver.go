// Package compose drives environment lifecycles through the compose CLI:
// up/down, image checks, streamed pulls and readiness polling.
package compose

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"vulnlab/internal/manifest"
	"vulnlab/internal/scan"
)

// Invocation styles for the compose CLI.
const (
	StyleAuto   = "auto"
	StyleModern = "docker compose"
	StyleLegacy = "docker-compose"
)

// ErrInvalidIdentifier means an identifier failed containment or existence
// checks. It is rejected before any subprocess runs and never corrected.
var ErrInvalidIdentifier = errors.New("invalid environment identifier")

// OpError is a failed lifecycle operation, carrying the CLI's diagnostic
// text verbatim. PortConflict marks bind failures so callers can suggest
// freeing the port instead of showing a generic error.
type OpError struct {
	Op           string
	Diagnostic   string
	PortConflict bool
}

func (e *OpError) Error() string {
	return fmt.Sprintf("compose %s: %s", e.Op, e.Diagnostic)
}

var conflictPhrases = []string{
	"address already in use",
	"port is already allocated",
}

func isPortConflict(diag string) bool {
	lower := strings.ToLower(diag)
	for _, p := range conflictPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Driver wraps the compose CLI for environments under one scan root.
type Driver struct {
	Root   string
	Runner Runner
	// Inspector may be nil when no docker daemon is reachable;
	// CheckImages then degrades to a warning.
	Inspector scan.ImageInspector
	// Style is one of StyleAuto/StyleModern/StyleLegacy. Auto probes the
	// CLI once and reuses the answer for the process lifetime.
	Style string
	// Probe overrides the readiness probe; nil means the HTTP probe.
	Probe func(ctx context.Context, port int) bool

	detectOnce sync.Once
	argv       []string
}

// Resolve maps an identifier to its environment directory. This is the
// sole security boundary: identifiers that are absolute, escape the root
// through "..", or name a directory without a manifest are all rejected.
func (d *Driver) Resolve(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if strings.HasPrefix(id, "/") || filepath.IsAbs(filepath.FromSlash(id)) {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidIdentifier, id)
	}

	clean := filepath.Clean(filepath.FromSlash(id))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the root", ErrInvalidIdentifier, id)
	}

	dir := filepath.Join(d.Root, clean)
	rel, err := filepath.Rel(d.Root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the root", ErrInvalidIdentifier, id)
	}

	if _, ok := manifest.Locate(dir); !ok {
		return "", fmt.Errorf("%w: no manifest in %q", ErrInvalidIdentifier, id)
	}
	return dir, nil
}

// composeArgv returns the CLI invocation, detecting the style on first
// use: `docker compose` when the plugin answers, the standalone binary
// otherwise, defaulting to the plugin when neither does.
func (d *Driver) composeArgv(ctx context.Context) []string {
	d.detectOnce.Do(func() {
		switch d.Style {
		case StyleModern:
			d.argv = []string{"docker", "compose"}
			return
		case StyleLegacy:
			d.argv = []string{"docker-compose"}
			return
		}
		if _, _, err := d.Runner.Run(ctx, "", "docker", "compose", "version"); err == nil {
			d.argv = []string{"docker", "compose"}
			return
		}
		if _, _, err := d.Runner.Run(ctx, "", "docker-compose", "version"); err == nil {
			d.argv = []string{"docker-compose"}
			return
		}
		d.argv = []string{"docker", "compose"}
	})
	return d.argv
}

// run executes a compose subcommand in dir.
func (d *Driver) run(ctx context.Context, dir string, args ...string) (string, string, error) {
	argv := append(append([]string{}, d.composeArgv(ctx)...), args...)
	return d.Runner.Run(ctx, dir, argv[0], argv[1:]...)
}

// opError shapes a failed operation: stderr wins, then stdout, then the
// exec error itself.
func opError(op, stdout, stderr string, err error) *OpError {
	diag := strings.TrimSpace(stderr)
	if diag == "" {
		diag = strings.TrimSpace(stdout)
	}
	if diag == "" && err != nil {
		diag = err.Error()
	}
	return &OpError{Op: op, Diagnostic: diag, PortConflict: isPortConflict(diag)}
}

// Start brings the environment up, detached. The returned error, if any,
// is an *OpError; identifiers failing Resolve surface ErrInvalidIdentifier.
func (d *Driver) Start(ctx context.Context, id string) error {
	dir, err := d.Resolve(id)
	if err != nil {
		return err
	}
	if stdout, stderr, err := d.run(ctx, dir, "up", "-d"); err != nil {
		return opError("up", stdout, stderr, err)
	}
	return nil
}

// Stop tears the environment down.
func (d *Driver) Stop(ctx context.Context, id string) error {
	dir, err := d.Resolve(id)
	if err != nil {
		return err
	}
	if stdout, stderr, err := d.run(ctx, dir, "down"); err != nil {
		return opError("down", stdout, stderr, err)
	}
	return nil
}

// Pull launches the image pull and streams its combined output. The
// stream is finite and not restartable; cancelling ctx terminates the
// subprocess, which is reaped either way.
func (d *Driver) Pull(ctx context.Context, id string) (*Stream, error) {
	dir, err := d.Resolve(id)
	if err != nil {
		return nil, err
	}
	argv := append(append([]string{}, d.composeArgv(ctx)...), "pull")
	return d.Runner.Stream(ctx, dir, argv[0], argv[1:]...)
}
