// Package selector applies the retention policy that decides which
// canonical actions reach the rendered checklist.
package selector

import (
	"github.com/relief-ops/checklist-cli/internal/model"
)

// Policy enumerates the recognized selection options. The zero value is the
// default policy: flagged actions stay out of the rendered checklist (they
// always remain in the metadata report), no level floor, no subject
// exclusions.
type Policy struct {
	// IncludeFlagged promotes flagged actions into the rendered output.
	IncludeFlagged bool

	// MinOperationalLevel drops actions below the given tier. Actions with
	// an unspecified tier are never dropped by this filter.
	MinOperationalLevel model.OperationalLevel

	// ExcludeSubjects removes actions whose every reference points into an
	// excluded subject. An action that is also referenced from a
	// non-excluded subject survives.
	ExcludeSubjects map[string]bool
}

// Result splits the canonical set into included and excluded actions. The
// filter is pure: action content is never modified.
type Result struct {
	Included []model.Action
	Excluded []model.Action
}

// Select applies the policy over the canonical action set.
func Select(canonical []model.Action, flagged []model.FlaggedAction, policy Policy) *Result {
	res := &Result{}

	pool := make([]model.Action, 0, len(canonical)+len(flagged))
	pool = append(pool, canonical...)
	if policy.IncludeFlagged {
		for _, fa := range flagged {
			pool = append(pool, fa.Action)
		}
	}

	for _, a := range pool {
		if !levelAllowed(a.Level, policy.MinOperationalLevel) {
			res.Excluded = append(res.Excluded, a)
			continue
		}
		if excludedBySubject(a, policy.ExcludeSubjects) {
			res.Excluded = append(res.Excluded, a)
			continue
		}
		res.Included = append(res.Included, a)
	}
	return res
}

func levelAllowed(level, min model.OperationalLevel) bool {
	if min == model.LevelUnspecified || level == model.LevelUnspecified {
		return true
	}
	return level >= min
}

func excludedBySubject(a model.Action, excluded map[string]bool) bool {
	if len(excluded) == 0 || len(a.References) == 0 {
		return false
	}
	for _, ref := range a.References {
		if !excluded[ref.NodeID] {
			return false
		}
	}
	return true
}
