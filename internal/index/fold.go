package index

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransform decomposes to NFD and drops combining marks (Mn), the
// standard x/text accent-folding chain, so that diacritic-variant
// spellings match each other at both index and query time, per spec §4.7.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldAccents(s string) string {
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// tokenize splits folded text on non-letter/non-digit runes for the
// full-text term index.
func tokenize(s string) []string {
	folded := foldAccents(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// isFTSField reports whether field gets a normalised _fts sibling entry
// on indexing, per spec §4.7's named-field list plus the "_fts" suffix
// convention.
func isFTSField(field string) bool {
	switch field {
	case "name", "description", "content", "text", "location":
		return true
	}
	return strings.HasSuffix(field, "_fts")
}
