package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/lakerun/internal/failure"
	"github.com/roach88/lakerun/internal/target"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The engine or the warehouse reported a failure
	ExitCommandError = 2 // Command error (bad arguments, missing workspace, engine not found, etc.)
)

// Error codes carried in JSON error responses.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E002" // Workspace, file or setting not found
	ErrCodeMissingField = "E003" // Job file lacks a required field
	ErrCodeSpawn        = "E004" // Engine could not be started
	ErrCodeEngineExit   = "E005" // Engine exited non-zero
	ErrCodeParse        = "E006" // Expected markers missing from engine output
	ErrCodeRemote       = "E007" // Warehouse request failed
	ErrCodeInvalid      = "E008" // Validation reported errors
	ErrCodeUnsupported  = "E009" // File kind cannot be run
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool // already shown to the user as a notice
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classifyError maps a pipeline error to an exit code and an error code.
func classifyError(err error) (int, string) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, ErrCodeGeneric
	}
	if errors.Is(err, target.ErrUnsupported) {
		return ExitCommandError, ErrCodeUnsupported
	}
	switch failure.CodeOf(err) {
	case failure.NotFound:
		return ExitCommandError, ErrCodeNotFound
	case failure.MissingField:
		return ExitCommandError, ErrCodeMissingField
	case failure.SpawnFailure:
		return ExitCommandError, ErrCodeSpawn
	case failure.NonZeroExit:
		return ExitFailure, ErrCodeEngineExit
	case failure.ParseMiss:
		return ExitFailure, ErrCodeParse
	case failure.RemoteFailure:
		return ExitFailure, ErrCodeRemote
	case failure.Invalid:
		return ExitFailure, ErrCodeInvalid
	default:
		return ExitFailure, ErrCodeGeneric
	}
}

// errorDetails is the context attached to JSON error responses.
type errorDetails struct {
	Op       string `json:"op,omitempty"`
	Path     string `json:"path,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

func detailsOf(err error) interface{} {
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return nil
	}
	return errorDetails{Op: fe.Op, Path: fe.Path, ExitCode: fe.ExitCode}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E002", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output relies on the data's String method when it has one.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %+v\n", details)
	}
	return nil
}
