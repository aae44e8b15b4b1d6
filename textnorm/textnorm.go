// Package textnorm holds the Unicode-aware string comparisons shared by
// criteria matching, dedup keys and query slugs.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	multiSpace = regexp.MustCompile(`\s+`)
	nonSlug    = regexp.MustCompile(`[^a-z0-9]+`)
)

// Fold returns s trimmed, whitespace-collapsed and case-folded. Accents are
// kept: "Usaquén" and "usaquen" do not fold together.
func Fold(s string) string {
	s = multiSpace.ReplaceAllString(strings.TrimSpace(s), " ")
	return cases.Fold().String(norm.NFC.String(s))
}

func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}

// Contains reports whether needle occurs in haystack ignoring case.
func Contains(haystack, needle string) bool {
	n := Fold(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Fold(haystack), n)
}

// AnyContains reports whether needle occurs in any of values.
func AnyContains(values []string, needle string) bool {
	for _, v := range values {
		if Contains(v, needle) {
			return true
		}
	}
	return false
}

func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slug lowercases, strips accents and joins words with dashes, the way
// listing portals spell cities and neighborhoods in their paths.
func Slug(s string) string {
	s = cases.Lower(language.Spanish).String(StripAccents(strings.TrimSpace(s)))
	return strings.Trim(nonSlug.ReplaceAllString(s, "-"), "-")
}
