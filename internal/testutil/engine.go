// Package testutil provides in-memory stand-ins for the engine subprocess,
// the warehouse service and the workspace state store.
package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roach88/lakerun/internal/process"
)

// EngineReply is the scripted outcome of one engine invocation.
type EngineReply struct {
	Output   string
	ExitCode int

	// Err is returned instead of a result, simulating a spawn failure.
	Err error
}

// FakeRunner replays scripted engine output instead of starting processes.
//
// Replies are keyed by the space-joined argument list. Unmatched calls get
// Default.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeRunner struct {
	Default EngineReply

	mu      sync.Mutex
	replies map[string]EngineReply
	calls   []process.Spec
}

// NewFakeRunner creates a runner whose unmatched calls succeed silently.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{replies: make(map[string]EngineReply)}
}

// On scripts the reply for an argument list such as "transform --name x".
func (r *FakeRunner) On(args string, reply EngineReply) *FakeRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[args] = reply
	return r
}

// Run implements process.Runner. Output is written to sink in one chunk.
func (r *FakeRunner) Run(ctx context.Context, spec process.Spec, sink io.Writer) (*process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, spec)
	n := len(r.calls)
	reply, ok := r.replies[strings.Join(spec.Args, " ")]
	if !ok {
		reply = r.Default
	}
	r.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}
	if sink != nil && reply.Output != "" {
		if _, err := io.WriteString(sink, reply.Output); err != nil {
			return nil, err
		}
	}
	return &process.Result{
		RunID:    fmt.Sprintf("run-%d", n),
		Output:   reply.Output,
		ExitCode: reply.ExitCode,
	}, nil
}

// Calls returns every spec passed to Run, in order.
func (r *FakeRunner) Calls() []process.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Spec(nil), r.calls...)
}

// Args returns the argument lists of every call, space-joined.
func (r *FakeRunner) Args() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = strings.Join(c.Args, " ")
	}
	return out
}
