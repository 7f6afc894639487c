package kind

import (
	"strings"
	"unicode"
)

// NormalizeKind lower cases and removes dashes, underscores and spaces to
// allow some flexibility when comparing names given on the command line
func NormalizeKind(kind string) string {
	var b strings.Builder
	b.Grow(len(kind))

	for _, r := range kind {
		r := unicode.ToLower(r)
		if r != '_' && r != '-' && !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Lookup finds the value registered under a name that matches kind
func Lookup[T any](kind string, table map[string]T) (T, bool) {
	normalized := NormalizeKind(kind)

	for name, value := range table {
		if NormalizeKind(name) == normalized {
			return value, true
		}
	}

	var zero T
	return zero, false
}
