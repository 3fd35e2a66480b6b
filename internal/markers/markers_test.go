package markers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSpan(t *testing.T) {
	tests := []struct {
		name  string
		buf   string
		want  string
		found bool
	}{
		{"simple", "xxBEGINpayloadENDyy", "payload", true},
		{"empty payload", "BEGINEND", "", true},
		{"missing begin", "payloadEND", "", false},
		{"missing end", "BEGINpayload", "", false},
		{"end before begin only", "END junk BEGIN payload", "", false},
		{"end before begin then after", "END junk BEGIN payload END tail", " payload ", true},
		{"first begin wins", "BEGIN one END BEGIN two END", " one ", true},
		{"duplicate begin inside span", "BEGIN a BEGIN b END", " a BEGIN b ", true},
		{"empty buffer", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractSpan(tt.buf, "BEGIN", "END")
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractSpan_OverlappingMarkers(t *testing.T) {
	// the end marker is searched only after the whole begin marker
	got, ok := ExtractSpan("ABCD", "ABC", "BCD")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestCompiledSQL(t *testing.T) {
	buf := "INFO starting\nSTART COMPILE SQL\nSELECT 1\nEND COMPILE SQL\nINFO done\n"

	sql, ok := CompiledSQL(buf)
	assert.True(t, ok)
	assert.Equal(t, "\nSELECT 1\n", sql)
}

func TestInteractiveResults(t *testing.T) {
	buf := "START COMPILE SQL\nSELECT 1\nEND COMPILE SQL\nSTART INTERACTIVE SQL\nf0\n1\nEND INTERACTIVE SQL\n"

	res, ok := InteractiveResults(buf)
	assert.True(t, ok)
	assert.Equal(t, "\nf0\n1\n", res)

	_, ok = InteractiveResults("START COMPILE SQL\nEND COMPILE SQL")
	assert.False(t, ok)
}

func TestBytesProcessed(t *testing.T) {
	tests := []struct {
		name  string
		buf   string
		want  int64
		found bool
	}{
		{"plain", "Total Bytes Processed: 1500 bytes.", 1500, true},
		{"no space", "Total Bytes Processed:42bytes.", 42, true},
		{"embedded in logs", "INFO x\nINFO Total Bytes Processed:  2500000 bytes.\nINFO y", 2500000, true},
		{"missing", "nothing here", 0, false},
		{"not a number", "Total Bytes Processed: many bytes.", 0, false},
		{"units before label", "bytes. Total Bytes Processed: 7", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := BytesProcessed(tt.buf)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		buf  string
		want Report
	}{
		{
			name: "success",
			buf:  "log\nSTART VALIDATION RESULTS: 0 errors found\nEND VALIDATION RESULTS\n",
			want: Report{Body: "0 errors found\n", Found: true, Failed: false},
		},
		{
			name: "errors reported",
			buf:  "START VALIDATION RESULTS: 2 errors found\nbad type\nEND VALIDATION RESULTS",
			want: Report{Body: "2 errors found\nbad type\n", Found: true, Failed: true},
		},
		{
			name: "incidental error keyword does not fail",
			buf:  "2024 ERROR something unrelated\nSTART VALIDATION RESULTS: 0 errors found\nEND VALIDATION RESULTS",
			want: Report{Body: "0 errors found\n", Found: true, Failed: false},
		},
		{
			name: "phrase elsewhere does not count",
			buf:  "0 errors found\nSTART VALIDATION RESULTS: 1 error found\nEND VALIDATION RESULTS",
			want: Report{Body: "1 error found\n", Found: true, Failed: true},
		},
		{
			name: "no markers",
			buf:  "engine crashed",
			want: Report{},
		},
		{
			name: "begin without end",
			buf:  "START VALIDATION RESULTS: 3 errors found",
			want: Report{Failed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validation(tt.buf))
		})
	}
}
