package names

import (
	"math"

	"github.com/pmezard/go-difflib/difflib"
)

// Score returns how alike two company names are on a 0-100 scale.
//
// Names are normalized first; identical identities score 100 and an empty
// identity on either side scores 0. Otherwise the score is the
// Ratcliff/Obershelp ratio of the normalized forms, rounded to an integer.
// Score(a, b) == Score(b, a) for all inputs.
func Score(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	return scoreNormalized(na, nb)
}

// ScoreNormalized is Score for inputs that are already normalized.
func ScoreNormalized(na, nb string) int {
	return scoreNormalized(na, nb)
}

func scoreNormalized(na, nb string) int {
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}

	// SequenceMatcher is order-sensitive; match in a canonical order.
	if na > nb {
		na, nb = nb, na
	}

	m := difflib.NewMatcher(splitRunes(na), splitRunes(nb))
	return int(math.Round(m.Ratio() * 100))
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
