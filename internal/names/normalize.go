// Package names canonicalizes company names and scores how alike two names are.
package names

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSuffixPasses bounds suffix stripping for pathological inputs such as
// "Acme Pharma Pharma Pharma ...".
const maxSuffixPasses = 8

// suffixes lists legal-entity and sector-generic words removed from the end of
// a name. Order matters: within one pass the first matching entry wins.
var suffixes = []string{
	"incorporated", "corporation", "company", "limited",
	`inc\.?`, `llc\.?`, `ltd\.?`, `corp\.?`, `co\.?`, `plc\.?`, `sa\.?`, `ag\.?`, `gmbh\.?`,
	"therapeutics", "pharmaceuticals", "pharma", "biopharma",
	"biosciences", "biotherapeutics", "biotech", "biotechnology", "bio",
	"sciences", "medical", "health", "healthcare",
}

var suffixPatterns = compileSuffixes(suffixes)

var (
	parentheticalRe = regexp.MustCompile(`\([^)]*\)`)
	punctuationRe   = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

func compileSuffixes(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`\s+` + w + `$`)
	}
	return out
}

// Normalize returns the identity key for a company name. Two names that
// normalize to the same string are treated as the same company.
//
// The result is lower-case ASCII-folded text with parenthetical asides, legal
// and sector suffixes, punctuation and all whitespace removed. Suffixes are
// stripped repeatedly so "X Biosciences, Inc." reduces to "x". Normalize is
// idempotent and never fails; empty input yields "".
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}

	s = foldDiacritics(s)
	s = parentheticalRe.ReplaceAllString(s, " ")
	s = stripSuffixes(s)
	s = punctuationRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, "")

	return s
}

// stripSuffixes removes one suffix per pass until nothing matches.
func stripSuffixes(s string) string {
	for pass := 0; pass < maxSuffixPasses; pass++ {
		s = trimTrailingPunct(s)
		stripped := false
		for _, re := range suffixPatterns {
			if loc := re.FindStringIndex(s); loc != nil {
				s = s[:loc[0]]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return trimTrailingPunct(s)
}

func trimTrailingPunct(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.' || r == ';' || r == '-'
	})
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
