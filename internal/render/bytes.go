package render

import "strconv"

// FormatBytes renders a byte count with a decimal unit (B, KB, MB, GB).
//
// The quotient is printed as-is without rounding, so 1234 becomes
// "1.234 KB". Counts below 1000 have no space before the unit.
func FormatBytes(n int64) string {
	switch {
	case n < 1_000:
		return strconv.FormatInt(n, 10) + "B"
	case n < 1_000_000:
		return formatQuotient(n, 1_000) + " KB"
	case n < 1_000_000_000:
		return formatQuotient(n, 1_000_000) + " MB"
	default:
		return formatQuotient(n, 1_000_000_000) + " GB"
	}
}

func formatQuotient(n, unit int64) string {
	return strconv.FormatFloat(float64(n)/float64(unit), 'f', -1, 64)
}
