// Package target decides what unit of work an open file and selection map to.
//
// Layout convention: job definitions live under a "jobs" directory somewhere
// below the project root, one <name>.comet.yml per job, optionally next to
// one or more <name>[.<step>].sql query files.
package target

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/lakerun/internal/envfile"
	"github.com/roach88/lakerun/internal/failure"
	"github.com/roach88/lakerun/internal/jobdef"
)

// JobsDir is the directory segment that marks job files.
const JobsDir = "jobs"

// QueryExtension is the extension of query files.
const QueryExtension = ".sql"

// ErrUnsupported is returned for files inside the jobs folder that are
// neither job definitions nor query files.
var ErrUnsupported = errors.New("unsupported file in jobs folder")

// Kind tags a Target.
type Kind int

const (
	AdHocQuery Kind = iota + 1
	CompiledJob
	InteractiveJob
	Maintenance
)

func (k Kind) String() string {
	switch k {
	case AdHocQuery:
		return "adhoc"
	case CompiledJob:
		return "compiled"
	case InteractiveJob:
		return "interactive"
	case Maintenance:
		return "maintenance"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Maintenance actions understood by the engine.
const (
	ActionValidate  = "validate"
	ActionLoad      = "load"
	ActionTransform = "transform"
	ActionYml2gv    = "yml2gv"
	ActionYml2xls   = "yml2xls"
	ActionXls2yml   = "xls2yml"
)

// Target is one classified unit of work. Only the fields matching Kind
// are set.
type Target struct {
	Kind Kind

	// Query is the SQL text of an AdHocQuery.
	Query string

	// Job is the job name of a CompiledJob or InteractiveJob. An
	// AdHocQuery read from a job's query file carries it too.
	Job string

	// Action and Args describe a Maintenance target.
	Action string
	Args   []string
}

// NewAdHoc returns an AdHocQuery target.
func NewAdHoc(query string) Target {
	return Target{Kind: AdHocQuery, Query: query}
}

// NewCompiled returns a CompiledJob target.
func NewCompiled(job string) Target {
	return Target{Kind: CompiledJob, Job: job}
}

// NewInteractive returns an InteractiveJob target.
func NewInteractive(job string) Target {
	return Target{Kind: InteractiveJob, Job: job}
}

// NewMaintenance returns a Maintenance target. Args are copied.
func NewMaintenance(action string, args ...string) Target {
	return Target{Kind: Maintenance, Action: action, Args: append([]string(nil), args...)}
}

func (t Target) String() string {
	switch t.Kind {
	case AdHocQuery:
		return "adhoc query"
	case CompiledJob, InteractiveJob:
		return fmt.Sprintf("%s job %s", t.Kind, t.Job)
	case Maintenance:
		return strings.TrimSpace(t.Action + " " + strings.Join(t.Args, " "))
	default:
		return t.Kind.String()
	}
}

// Classify maps a file and the current selection to a Target.
//
// The selection is trimmed; an empty selection means the whole file.
// The file is read only when its content is needed.
func Classify(path, selection, projectRoot string) (Target, error) {
	selection = strings.TrimSpace(selection)
	base := filepath.Base(path)

	if !InJobs(path, projectRoot) {
		return adHoc(path, selection)
	}

	switch {
	case strings.HasSuffix(base, jobdef.Extension):
		return NewCompiled(strings.TrimSuffix(base, jobdef.Extension)), nil

	case strings.HasSuffix(base, QueryExtension):
		sibling := filepath.Join(filepath.Dir(path), strings.TrimSuffix(base, QueryExtension)+jobdef.Extension)
		name := JobName(path)
		if !exists(sibling) {
			// Multi-statement files share the definition of their prefix.
			sibling = filepath.Join(filepath.Dir(path), name+jobdef.Extension)
		}
		if !exists(sibling) {
			return adHoc(path, selection)
		}

		text := selection
		if text == "" {
			content, err := readText(path)
			if err != nil {
				return Target{}, err
			}
			text = content
		}
		// Placeholders only the engine can substitute.
		if envfile.HasPlaceholder(text) {
			return NewInteractive(name), nil
		}
		t := NewAdHoc(text)
		t.Job = name
		return t, nil

	default:
		return Target{}, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
}

// JobName derives a job name from a job or query file name: the
// extension is stripped and the rest is truncated at its first '.'.
func JobName(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, jobdef.Extension):
		base = strings.TrimSuffix(base, jobdef.Extension)
	default:
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

// InJobs reports whether path has a jobs directory segment below
// projectRoot. When path is outside projectRoot every segment counts.
func InJobs(path, projectRoot string) bool {
	dir := filepath.Dir(path)
	if projectRoot != "" {
		if rel, err := filepath.Rel(projectRoot, dir); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			dir = rel
		}
	}
	for _, seg := range strings.Split(filepath.ToSlash(dir), "/") {
		if seg == JobsDir {
			return true
		}
	}
	return false
}

func adHoc(path, selection string) (Target, error) {
	if selection != "" {
		return NewAdHoc(selection), nil
	}
	content, err := readText(path)
	if err != nil {
		return Target{}, err
	}
	return NewAdHoc(content), nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", failure.Missing("read query", path)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
