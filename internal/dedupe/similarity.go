package dedupe

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// tokenize splits text into case-folded, punctuation-trimmed tokens.
func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(folder.String(text)) {
		f = strings.Trim(f, ".,;:!?()[]\"'`")
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

// Similarity computes the token-Jaccard similarity of two actions'
// (who, what) pairs, case and whitespace insensitive. Two empty inputs
// score 0 so that blank flagged actions never collapse together.
func Similarity(whoA, whatA, whoB, whatB string) float64 {
	a := tokenize(whoA + " " + whatA)
	b := tokenize(whoB + " " + whatB)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
