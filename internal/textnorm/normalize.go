// Package textnorm canonicalizes free-form names, titles and status labels
// so they can be compared across the tracker and the storage backend.
package textnorm

import (
	"strings"
	"unicode"
)

// dashVariants are folded to a plain hyphen before filtering.
var dashVariants = strings.NewReplacer(
	"‐", "-", // hyphen
	"‑", "-", // non-breaking hyphen
	"‒", "-", // figure dash
	"–", "-", // en dash
	"—", "-", // em dash
	"―", "-", // horizontal bar
	"−", "-", // minus sign
	"﹘", "-", // small em dash
	"﹣", "-", // small hyphen-minus
	"－", "-", // fullwidth hyphen-minus
)

// Name normalizes a file, folder or task name for fuzzy matching.
//
// The result is lower-cased, dash variants become "-", every rune other than
// letters, digits, whitespace, '.', '-' and '_' is dropped, and runs of
// whitespace collapse to a single space. Name is idempotent.
func Name(s string) string {
	s = dashVariants.Replace(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return collapse(b.String())
}

// Status normalizes a workflow status label for exact comparison.
// Punctuation is removed entirely, so "Needs Approval (Dev)" and
// "needs approval dev" compare equal. Status is idempotent.
func Status(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return collapse(b.String())
}

// StripExtension removes the final ".ext" suffix from a file name, if any.
func StripExtension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name
	}
	return name[:i]
}

// collapse joins whitespace-separated fields with single spaces, which also
// trims both ends.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
