// Package markers recovers structured sections from engine output.
//
// The engine prints its results inline with its logs, delimited by literal
// begin/end tokens. All extraction here is plain substring search over the
// combined stdout+stderr buffer of one run; nothing depends on line
// structure. A missing marker pair means "section not present" and is
// reported with ok=false, never as an error.
package markers

import (
	"strconv"
	"strings"
)

// Marker tokens printed by the engine.
const (
	CompileBegin     = "START COMPILE SQL"
	CompileEnd       = "END COMPILE SQL"
	InteractiveBegin = "START INTERACTIVE SQL"
	InteractiveEnd   = "END INTERACTIVE SQL"
	ValidationBegin  = "START VALIDATION RESULTS: "
	ValidationEnd    = "END VALIDATION RESULTS"
	BytesBegin       = "Total Bytes Processed:"
	BytesEnd         = "bytes."

	// NoErrorsPhrase follows ValidationBegin when validation passed.
	NoErrorsPhrase = "0 errors found"
)

// ExtractSpan returns the text strictly between the first begin marker
// and the first end marker that follows it.
func ExtractSpan(buf, begin, end string) (string, bool) {
	start := strings.Index(buf, begin)
	if start < 0 {
		return "", false
	}
	from := start + len(begin)
	stop := strings.Index(buf[from:], end)
	if stop < 0 {
		return "", false
	}
	return buf[from : from+stop], true
}

// CompiledSQL returns the SQL emitted by `transform --compile`.
func CompiledSQL(buf string) (string, bool) {
	return ExtractSpan(buf, CompileBegin, CompileEnd)
}

// InteractiveResults returns the result text emitted by `transform --interactive`.
func InteractiveResults(buf string) (string, bool) {
	return ExtractSpan(buf, InteractiveBegin, InteractiveEnd)
}

// BytesProcessed returns the scanned-byte estimate reported by the engine.
// ok is false when the line is absent or its number does not parse.
func BytesProcessed(buf string) (int64, bool) {
	span, ok := ExtractSpan(buf, BytesBegin, BytesEnd)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(span), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Report is the outcome of a validation run as seen in its output.
type Report struct {
	// Body is the text between the validation markers.
	Body string

	// Found is true when both validation markers were present.
	Found bool

	// Failed is true when the begin marker is present and not
	// immediately followed by NoErrorsPhrase.
	Failed bool
}

// Validation extracts the validation report.
//
// Success is decided only by the phrase right after the begin marker, so
// an incidental "ERROR" elsewhere in the logs does not fail validation.
func Validation(buf string) Report {
	var r Report

	start := strings.Index(buf, ValidationBegin)
	if start >= 0 {
		r.Failed = !strings.HasPrefix(buf[start+len(ValidationBegin):], NoErrorsPhrase)
	}

	r.Body, r.Found = ExtractSpan(buf, ValidationBegin, ValidationEnd)
	return r
}
