// Package notice carries short user-facing messages: the informational and
// error toasts of an interactive host, written as prefixed lines.
package notice

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Notifier receives user-facing notices.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// Writer writes notices as "info: ..." and "error: ..." lines.
// Multi-line messages are written verbatim after the prefix.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Info(msg string) { n.write("info", msg) }

func (n *Writer) Error(msg string) { n.write("error", msg) }

func (n *Writer) write(level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "%s: %s\n", level, strings.TrimRight(msg, "\n"))
}

// Notice is one recorded message.
type Notice struct {
	Level   string
	Message string
}

// Recorder keeps notices in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Info(msg string) { r.add("info", msg) }

func (r *Recorder) Error(msg string) { r.add("error", msg) }

func (r *Recorder) add(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Level: level, Message: msg})
}

// Notices returns a copy of everything recorded.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Messages returns the recorded messages of one level.
func (r *Recorder) Messages(level string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notices {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

// Discard drops every notice.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Info(string)  {}
func (discard) Error(string) {}
