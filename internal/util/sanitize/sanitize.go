// Package sanitize turns storefront product names into safe file names.
//
// Title applies, in order:
//   - removal of invisible Unicode characters (zero-width spaces, BOM, etc.)
//   - Unicode NFC normalization so visually equal names compare equal
//   - the cosmetic replacement table (edition labels, dash variants)
//   - replacement of path-unsafe characters with "-"
//   - whitespace collapsing and trimming
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes keeps "<name>_code.code.part" inside the usual 255-byte limit.
const MaxNameBytes = 200

var whitespaceRun = regexp.MustCompile(`[\s\p{Zs}]+`)

// unsafeChars covers the separators and everything Windows refuses in names.
var unsafeChars = strings.NewReplacer(
	":", "-",
	"/", "-",
	"\\", "-",
	"*", "-",
	"?", "-",
	"\"", "-",
	"<", "-",
	">", "-",
	"|", "-",
)

// Title normalizes a product name for use as a file or directory name.
// It returns "" when nothing usable is left.
func Title(name string, replacements [][2]string) string {
	s := removeInvisibleChars(name)
	s = norm.NFC.String(s)

	for _, r := range replacements {
		if r[0] != "" {
			s = strings.ReplaceAll(s, r[0], r[1])
		}
	}

	s = unsafeChars.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = normalizeWhitespace(s)

	// Windows drops trailing dots and spaces silently.
	s = strings.TrimRight(s, ". ")
	s = truncate(s, MaxNameBytes)
	s = strings.TrimRight(s, ". ")

	if s == "" || s == "." || s == ".." {
		return ""
	}
	return s
}

// removeInvisibleChars removes zero-width and other invisible Unicode characters
func removeInvisibleChars(s string) string {
	invisibleChars := []string{
		"\u200B", // Zero-width space
		"\u200C", // Zero-width non-joiner
		"\u200D", // Zero-width joiner
		"\uFEFF", // Zero-width no-break space (BOM)
		"\u00AD", // Soft hyphen
		"\u2060", // Word joiner
		"\u180E", // Mongolian vowel separator
	}

	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}

// normalizeWhitespace collapses runs of whitespace (including non-breaking
// spaces) into one space and trims the ends.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.TrimSpace(s[:n])
}
