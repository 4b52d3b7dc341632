// Package fake holds in-memory implementations of the registry's ports
// for tests: the envelope store, the image inspector, the compose runner
// and the container engine.
package fake

import (
	"slices"
	"sync"
)

// Call is one recorded invocation of a fake's method.
type Call struct {
	Method string
	Args   []any
}

// CallRecorder is embedded by every fake to log invocations for test
// assertions. The zero value is ready to use.
type CallRecorder struct {
	mu  sync.Mutex
	log []Call
}

func (r *CallRecorder) record(method string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, Call{Method: method, Args: args})
}

// Calls returns the invocations of one method in order; an empty method
// name selects the whole log.
func (r *CallRecorder) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	if method == "" {
		return slices.Clone(r.log)
	}
	var out []Call
	for _, c := range r.log {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset drops the log, usually between a test's arrange and act phases.
func (r *CallRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = nil
}
