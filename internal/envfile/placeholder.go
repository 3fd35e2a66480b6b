package envfile

import "strings"

// Placeholder returns the variable name wrapped by ${NAME} or {{NAME}}.
// ok is false when value is a literal.
func Placeholder(value string) (name string, ok bool) {
	v := strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}"):
		name = v[2 : len(v)-1]
	case strings.HasPrefix(v, "{{") && strings.HasSuffix(v, "}}"):
		name = v[2 : len(v)-2]
	default:
		return "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	return name, true
}

// HasPlaceholder reports whether text contains a placeholder opener.
func HasPlaceholder(text string) bool {
	return strings.Contains(text, "${") || strings.Contains(text, "{{")
}
