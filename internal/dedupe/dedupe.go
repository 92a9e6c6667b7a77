// Package dedupe collapses near-duplicate actions that recur across
// document subjects into single canonical actions with unioned provenance.
// The source material repeats whole protocol sections verbatim under
// different headings, so this pass is what keeps the rendered checklist
// free of echoes while preserving traceability to every originating
// subject.
package dedupe

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/timing"
)

// Config tunes the merge decision.
type Config struct {
	// Threshold is the minimum token-Jaccard similarity over (who, what)
	// for two actions to merge. Default: 0.85.
	Threshold float64

	// AmbiguityMargin defines the borderline band below Threshold. Pairs
	// inside the band are kept separate and surfaced as a warning instead
	// of force-merged. Default: 0.10.
	AmbiguityMargin float64
}

// DefaultConfig returns the dedup tuning defaults.
func DefaultConfig() Config {
	return Config{Threshold: 0.85, AmbiguityMargin: 0.10}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 0.85
	}
	if c.AmbiguityMargin < 0 {
		c.AmbiguityMargin = 0
	}
	return c
}

// Result is the canonical action set after merging.
type Result struct {
	Canonical   []model.Action
	Flagged     []model.FlaggedAction
	Warnings    []model.Warning
	MergedCount int
}

// Dedupe merges near-duplicate actions. Complete actions are merged first;
// flagged actions are then deduplicated against both pools, but a flagged
// action never absorbs a complete action's canonical id; complete always
// wins as merge target. Processing order is a stable sort by (traversal
// order, extraction order), which makes canonical ids reproducible across
// reruns of identical input.
func Dedupe(complete []model.Action, flagged []model.FlaggedAction, cfg Config) *Result {
	cfg = cfg.withDefaults()
	res := &Result{}

	ordered := make([]model.Action, len(complete))
	copy(ordered, complete)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TraversalOrder != ordered[j].TraversalOrder {
			return ordered[i].TraversalOrder < ordered[j].TraversalOrder
		}
		return ordered[i].ExtractionOrder < ordered[j].ExtractionOrder
	})

	for _, a := range ordered {
		if idx, ambiguous := res.matchCanonical(a, cfg); idx >= 0 {
			res.Canonical[idx] = merge(res.Canonical[idx], a)
			res.MergedCount++
		} else {
			if ambiguous >= 0 {
				res.Warnings = append(res.Warnings, ambiguityWarning(res.Canonical[ambiguous], a))
			}
			res.Canonical = append(res.Canonical, a)
		}
	}

	orderedFlagged := make([]model.FlaggedAction, len(flagged))
	copy(orderedFlagged, flagged)
	sort.SliceStable(orderedFlagged, func(i, j int) bool {
		if orderedFlagged[i].TraversalOrder != orderedFlagged[j].TraversalOrder {
			return orderedFlagged[i].TraversalOrder < orderedFlagged[j].TraversalOrder
		}
		return orderedFlagged[i].ExtractionOrder < orderedFlagged[j].ExtractionOrder
	})

	for _, fa := range orderedFlagged {
		// Against the complete pool first: the complete action survives and
		// absorbs the flagged action's provenance. absorb never swaps the
		// base, so a flagged action cannot take over a canonical id.
		if idx, _ := res.matchCanonical(fa.Action, cfg); idx >= 0 {
			res.Canonical[idx] = absorb(res.Canonical[idx], fa.Action)
			res.MergedCount++
			continue
		}

		merged := false
		for i, existing := range res.Flagged {
			if similar(existing.Action, fa.Action, cfg.Threshold) {
				res.Flagged[i] = model.FlaggedAction{
					Action:        absorb(existing.Action, fa.Action),
					MissingFields: existing.MissingFields,
				}
				res.MergedCount++
				merged = true
				break
			}
		}
		if !merged {
			res.Flagged = append(res.Flagged, fa)
		}
	}

	zap.L().Debug("dedupe pass complete",
		zap.Int("input_complete", len(complete)),
		zap.Int("input_flagged", len(flagged)),
		zap.Int("canonical", len(res.Canonical)),
		zap.Int("merged", res.MergedCount),
	)
	return res
}

// matchCanonical finds the first canonical action the candidate should
// merge into. The second return is the index of a borderline near-miss
// (inside the ambiguity band), or -1.
func (r *Result) matchCanonical(a model.Action, cfg Config) (match, ambiguous int) {
	ambiguous = -1
	for i, existing := range r.Canonical {
		sim := Similarity(existing.Who, existing.What, a.Who, a.What)
		if sim >= cfg.Threshold && timing.Compatible(existing.When, a.When) {
			return i, -1
		}
		if sim >= cfg.Threshold-cfg.AmbiguityMargin && sim < cfg.Threshold && ambiguous < 0 {
			ambiguous = i
		}
	}
	return -1, ambiguous
}

func similar(a, b model.Action, threshold float64) bool {
	return Similarity(a.Who, a.What, b.Who, b.What) >= threshold &&
		timing.Compatible(a.When, b.When)
}

// merge collapses donor into base, producing a new action. The richer of
// the two survives: a formula-bearing action always wins the base slot
// (its What carries the equation text, which must stay intact), otherwise
// the one with more context. Reference sets are unioned so provenance to
// every originating subject is retained.
func merge(base, donor model.Action) model.Action {
	if base.Formula == nil && donor.Formula != nil {
		base, donor = donor, base
	} else if (base.Formula == nil) == (donor.Formula == nil) && richer(donor, base) {
		base, donor = donor, base
	}
	return absorb(base, donor)
}

// absorb folds donor's provenance and gap-filling fields into base without
// ever changing which action survives.
func absorb(base, donor model.Action) model.Action {
	out := base
	out.References = unionRefs(base.References, donor.References)
	if out.Context == "" {
		out.Context = donor.Context
	}
	if out.Level == model.LevelUnspecified {
		out.Level = donor.Level
	}
	if donor.TraversalOrder < out.TraversalOrder {
		out.TraversalOrder = donor.TraversalOrder
		out.ExtractionOrder = donor.ExtractionOrder
	}
	return out
}

// richer prefers the action with more context and provenance.
func richer(a, b model.Action) bool {
	if len(a.Context) != len(b.Context) {
		return len(a.Context) > len(b.Context)
	}
	return len(a.References) > len(b.References)
}

func unionRefs(a, b []model.SourceRef) []model.SourceRef {
	out := make([]model.SourceRef, 0, len(a)+len(b))
	seen := make(map[model.SourceRef]struct{})
	for _, refs := range [][]model.SourceRef{a, b} {
		for _, r := range refs {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func ambiguityWarning(existing, candidate model.Action) model.Warning {
	return model.Warning{
		Kind: model.WarnDeduplicationAmbiguity,
		Detail: fmt.Sprintf("actions %s and %s are near but below the merge threshold; kept separate",
			existing.ID, candidate.ID),
	}
}
