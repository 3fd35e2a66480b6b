// Package jobdef reads transformation job definitions.
//
// A job definition is a YAML file named <job>.comet.yml living under the
// project's jobs folder. Only the `transform` section matters here:
//
//	transform:
//	  engine: ${engine}
//	  tasks: [...]
//
// Files are decoded through CUE so that shape errors (e.g. a non-string
// engine) come back with a line and column.
package jobdef

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/roach88/lakerun/internal/envfile"
	"github.com/roach88/lakerun/internal/failure"
)

// Extension is the file suffix of job definitions.
const Extension = ".comet.yml"

// schema constrains the parts of a job file this package reads.
// Other fields are left open.
const schema = `
transform?: {
	engine?: string
	...
}
`

// Job is a decoded job definition.
type Job struct {
	// Name is the file name without Extension.
	Name string

	// Path is the file the job was read from.
	Path string

	// Engine is the raw transform.engine value, possibly a placeholder.
	Engine string
}

// SchemaError reports a job file that does not match the expected shape.
type SchemaError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and checks the job definition at path.
//
// A missing file is a failure.NotFound; a file without a transform
// section or engine is a failure.MissingField.
func Load(path string) (*Job, error) {
	// #nosec G304 -- path comes from the file the user asked to run
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.Missing("load job", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	f, err := cueyaml.Extract(path, data)
	if err != nil {
		return nil, &failure.Error{Code: failure.MissingField, Op: "parse job", Path: path, Err: formatCUEError(err)}
	}

	ctx := cuecontext.New()
	v := ctx.BuildFile(f)
	if err := v.Err(); err != nil {
		return nil, &failure.Error{Code: failure.MissingField, Op: "parse job", Path: path, Err: formatCUEError(err)}
	}

	if err := ctx.CompileString(schema).Unify(v).Validate(); err != nil {
		return nil, &failure.Error{Code: failure.MissingField, Op: "check job", Path: path, Err: formatCUEError(err)}
	}

	transform := v.LookupPath(cue.ParsePath("transform"))
	if !transform.Exists() {
		return nil, &failure.Error{
			Code:    failure.MissingField,
			Op:      "check job",
			Path:    path,
			Message: "transform tag not found in job file",
		}
	}

	engineVal := transform.LookupPath(cue.ParsePath("engine"))
	if !engineVal.Exists() {
		return nil, &failure.Error{
			Code:    failure.MissingField,
			Op:      "check job",
			Path:    path,
			Message: "transform.engine is required",
		}
	}
	engine, err := engineVal.String()
	if err != nil {
		return nil, &failure.Error{Code: failure.MissingField, Op: "check job", Path: path, Err: formatCUEError(err)}
	}

	return &Job{
		Name:   strings.TrimSuffix(filepath.Base(path), Extension),
		Path:   path,
		Engine: engine,
	}, nil
}

// Engine is the outcome of resolving a job's execution engine.
type Engine struct {
	// Value is the resolved engine name. Empty when unresolved.
	Value string

	// Variable is the placeholder name, empty for literal engines.
	Variable string

	// Resolved is false when a placeholder had no matching variable.
	Resolved bool
}

// String renders the engine, using envfile.NoOverlay for unresolved ones.
func (e Engine) String() string {
	if !e.Resolved {
		return envfile.NoOverlay
	}
	return e.Value
}

// ResolveEngine loads the job at path and resolves its engine against env.
func ResolveEngine(path string, env *envfile.Map) (Engine, error) {
	job, err := Load(path)
	if err != nil {
		return Engine{}, err
	}
	return job.ResolveEngine(env), nil
}

// ResolveEngine resolves the job's engine against env.
func (j *Job) ResolveEngine(env *envfile.Map) Engine {
	name, ok := envfile.Placeholder(j.Engine)
	if !ok {
		return Engine{Value: j.Engine, Resolved: true}
	}
	value, found := env.Get(name)
	if !found {
		return Engine{Variable: name}
	}
	return Engine{Value: value, Variable: name, Resolved: true}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		format, args := first.Msg()
		return &SchemaError{
			Field:   strings.Join(first.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Pos:     positions[0],
		}
	}

	return err
}
