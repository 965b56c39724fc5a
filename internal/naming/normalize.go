// Package naming derives storage identifiers from human-entered organization names.
package naming

import (
	"strings"
	"unicode"
)

// DefaultCollectionPrefix is prepended to a normalized name to form the tenant collection name.
const DefaultCollectionPrefix = "org_"

// Normalize trims, lowercases, collapses every whitespace run into a single underscore and
// then drops every character outside [a-z0-9_]. A name with no surviving characters
// normalizes to the empty string.
func Normalize(name string) string {
	collapsed := strings.Join(strings.FieldsFunc(strings.ToLower(name), isSpace), "_")

	var b strings.Builder
	b.Grow(len(collapsed))
	for _, r := range collapsed {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isSpace also treats the ASCII file, group, record and unit separators
// (U+001C..U+001F) as whitespace, as Unicode-aware regex \s classes do.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// CollectionName joins prefix and an already normalized name.
func CollectionName(prefix, normalized string) string {
	return prefix + normalized
}
