// Package process launches the engine and collects its output.
//
// One Run owns one subprocess. Its stdout and stderr are pumped
// concurrently; each chunk is appended to the run's private buffer and
// written to a sink shared by every run. Chunk order is preserved per
// stream only. Runs started close together interleave on the sink, so
// the sink should be a LockedWriter and log records carry the run id.
//
// A Run delivers its completion exactly once through Wait/Done. A launch
// failure is returned from Spawn and no Run exists.
package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/lakerun/internal/failure"
)

// Spec describes one engine invocation.
type Spec struct {
	// Command is the executable to run.
	Command string

	// Args are passed to Command as-is.
	Args []string

	// Env is the complete KEY=VALUE environment (see BuildEnv).
	Env []string

	// Dir is the working directory; empty means the current one.
	Dir string
}

// Result is the completion event of a Run.
type Result struct {
	RunID    string
	Output   string
	ExitCode int
	Duration time.Duration
}

// Runner runs an engine invocation to completion.
type Runner interface {
	Run(ctx context.Context, spec Spec, sink io.Writer) (*Result, error)
}

// Dispatcher starts engine subprocesses.
type Dispatcher struct {
	// IDs generates run ids. Defaults to UUIDv7Generator.
	IDs IDGenerator

	// Logger receives start/exit records. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewDispatcher creates a Dispatcher with default ids and logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{IDs: UUIDv7Generator{}, Logger: logger}
}

// Run starts spec and waits for it to exit.
func (d *Dispatcher) Run(ctx context.Context, spec Spec, sink io.Writer) (*Result, error) {
	run, err := d.Spawn(ctx, spec, sink)
	if err != nil {
		return nil, err
	}
	res := run.Wait()
	return &res, nil
}

// Spawn starts spec and returns immediately.
//
// Output is copied to sink as it arrives. A start failure is reported as
// failure.SpawnFailure.
func (d *Dispatcher) Spawn(ctx context.Context, spec Spec, sink io.Writer) (*Run, error) {
	logger := d.logger()
	if sink == nil {
		sink = io.Discard
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	killGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &failure.Error{Code: failure.SpawnFailure, Op: "spawn", Path: spec.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &failure.Error{Code: failure.SpawnFailure, Op: "spawn", Path: spec.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		logger.Error("engine failed to start", "command", spec.Command, "error", err)
		return nil, &failure.Error{Code: failure.SpawnFailure, Op: "spawn", Path: spec.Command, Err: err}
	}

	run := &Run{
		ID:      d.ids().Generate(),
		started: time.Now(),
		sink:    sink,
		done:    make(chan struct{}),
		logger:  logger,
	}
	logger.Debug("engine started", "run_id", run.ID, "command", spec.Command, "args", spec.Args, "pid", cmd.Process.Pid)

	var pumps errgroup.Group
	pumps.Go(func() error { return run.pump(stdout) })
	pumps.Go(func() error { return run.pump(stderr) })

	go func() {
		// Pipes must be drained before Wait closes them.
		if err := pumps.Wait(); err != nil {
			logger.Debug("engine output read ended", "run_id", run.ID, "error", err)
		}
		run.finish(cmd.Wait())
	}()

	return run, nil
}

func (d *Dispatcher) ids() IDGenerator {
	if d.IDs == nil {
		return UUIDv7Generator{}
	}
	return d.IDs
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Run is one live engine subprocess.
type Run struct {
	// ID identifies the run in logs and history.
	ID string

	started time.Time
	sink    io.Writer
	logger  *slog.Logger

	mu  sync.Mutex
	buf bytes.Buffer

	done   chan struct{}
	result Result
}

// Done is closed once the process has exited and all output was read.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run completes and returns its result.
// Every call returns the same result.
func (r *Run) Wait() Result {
	<-r.done
	return r.result
}

// Output returns the output accumulated so far.
func (r *Run) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// pump copies src into the run until EOF.
func (r *Run) pump(src io.Reader) error {
	chunk := make([]byte, 32*1024)
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			r.append(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (r *Run) append(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf.Write(data)
	if _, err := r.sink.Write(data); err != nil {
		r.logger.Warn("output sink write failed", "run_id", r.ID, "error", err)
	}
}

func (r *Run) finish(waitErr error) {
	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	r.result = Result{
		RunID:    r.ID,
		Output:   r.Output(),
		ExitCode: code,
		Duration: time.Since(r.started),
	}
	r.logger.Debug("engine exited", "run_id", r.ID, "exit_code", code, "duration", r.result.Duration)
	close(r.done)
}

// LockedWriter serializes writes from concurrent runs so chunks are never
// torn, though chunks of different runs may still alternate.
type LockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLockedWriter wraps w.
func NewLockedWriter(w io.Writer) *LockedWriter {
	return &LockedWriter{w: w}
}

// Write implements io.Writer.
func (l *LockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
