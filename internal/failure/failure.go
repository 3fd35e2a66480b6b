// Package failure defines the error taxonomy shared by the dispatch pipeline.
//
// Every component reports failures as *Error values carrying a Code, so the
// CLI layer can decide how to surface them without string matching:
//
//   - NotFound: a file, directory or engine binary is missing
//   - MissingField: a job definition lacks a required section
//   - SpawnFailure: the engine process could not be started
//   - RemoteFailure: the warehouse rejected or failed a query job
//   - NonZeroExit: the engine ran but exited with a failure code
//   - ParseMiss: an expected marker span was absent from engine output
//   - Invalid: the engine ran but reported validation errors
//
// Nothing here is fatal to the process; callers degrade to a notice.
package failure

import (
	"errors"
	"fmt"
)

// Code categorizes a failure.
type Code string

const (
	NotFound      Code = "NOT_FOUND"
	MissingField  Code = "MISSING_FIELD"
	SpawnFailure  Code = "SPAWN_FAILURE"
	RemoteFailure Code = "REMOTE_FAILURE"
	NonZeroExit   Code = "NON_ZERO_EXIT"
	ParseMiss     Code = "PARSE_MISS"
	Invalid       Code = "INVALID"
)

// Error is a categorized failure with optional context.
type Error struct {
	// Code identifies the failure category.
	Code Code

	// Op names the operation that failed (e.g. "validate", "resolve env").
	Op string

	// Path is the file involved, if any.
	Path string

	// Message is a human-readable description.
	Message string

	// Output holds engine output accumulated before a NonZeroExit.
	Output string

	// ExitCode is the engine exit code for NonZeroExit.
	ExitCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s: %s %s: %s", e.Code, e.Op, e.Path, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Summary is the user-facing form: the message, then the path and the
// cause when present. The code and op are left out.
func (e *Error) Summary() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		return e.Err.Error()
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a message.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Missing reports a NotFound failure for a path.
func Missing(op, path string) *Error {
	return &Error{Code: NotFound, Op: op, Path: path, Message: "not found"}
}

// Exited reports a NonZeroExit failure and keeps the partial output.
func Exited(op string, exitCode int, output string) *Error {
	return &Error{
		Code:     NonZeroExit,
		Op:       op,
		Message:  fmt.Sprintf("exited with code %d", exitCode),
		Output:   output,
		ExitCode: exitCode,
	}
}

// Is reports whether err is, or wraps, an *Error with the given code.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Summary returns the user-facing text of err.
func Summary(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Summary()
	}
	return err.Error()
}
