// Package render formats query rows for display.
//
// Rows are flattened before formatting: nested records become dotted
// column names. The table and CSV layouts take their columns from the
// first row only; later rows missing a column get an empty cell and
// columns that appear only in later rows are dropped. JSON lines output
// keeps every field of every row.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Mode selects an output layout.
type Mode string

const (
	ModeTable Mode = "table"
	ModeCSV   Mode = "csv"
	ModeJSON  Mode = "json"
)

// DefaultMode is the layout used until the user picks another.
const DefaultMode = ModeTable

// ValidModes lists the accepted layouts.
var ValidModes = []Mode{ModeCSV, ModeJSON, ModeTable}

// ParseMode converts a user-supplied name to a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range ValidModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid format %q: must be one of %v", s, ValidModes)
}

// Render writes rows to w in the given mode.
func Render(w io.Writer, rows []Row, mode Mode) error {
	switch mode {
	case ModeCSV:
		return WriteCSV(w, rows)
	case ModeJSON:
		return WriteJSONLines(w, rows)
	case ModeTable, "":
		return WriteTable(w, rows)
	default:
		return fmt.Errorf("unknown render mode %q", mode)
	}
}

// Columns returns the flattened field names of the first row.
func Columns(rows []Row) []string {
	if len(rows) == 0 {
		return nil
	}
	return Flatten(rows[0]).Names()
}

// cells returns the formatted values of row for the given columns.
func cells(row Row, columns []string) []string {
	flat := Flatten(row)
	out := make([]string, len(columns))
	for i, c := range columns {
		if v, ok := flat.Get(c); ok {
			out[i] = FormatValue(v)
		}
	}
	return out
}

// WriteTable writes rows as fixed-width aligned text with a ruled header.
func WriteTable(w io.Writer, rows []Row) error {
	columns := Columns(rows)
	if len(columns) == 0 {
		return nil
	}

	header := normalize(columns)
	body := make([][]string, len(rows))
	for i, row := range rows {
		body[i] = normalize(cells(row, columns))
	}

	widths := make([]int, len(columns))
	for _, line := range append([][]string{header}, body...) {
		for i, cell := range line {
			if n := displayWidth(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	rule := make([]string, len(columns))
	for i, n := range widths {
		rule[i] = strings.Repeat("-", n)
	}

	var b strings.Builder
	for _, line := range append([][]string{header, rule}, body...) {
		b.Reset()
		for i, cell := range line {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-displayWidth(cell)))
		}
		if _, err := io.WriteString(w, strings.TrimRight(b.String(), " ")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes a header line and one record per row.
func WriteCSV(w io.Writer, rows []Row) error {
	columns := Columns(rows)
	if len(columns) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(cells(row, columns)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONLines writes one compact flattened object per row.
func WriteJSONLines(w io.Writer, rows []Row) error {
	for _, row := range rows {
		data, err := json.Marshal(Flatten(row))
		if err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// FormatValue renders a single cell value.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func normalize(line []string) []string {
	out := make([]string, len(line))
	for i, s := range line {
		out[i] = norm.NFC.String(s)
	}
	return out
}

// displayWidth counts terminal columns, giving wide East Asian runes two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}
