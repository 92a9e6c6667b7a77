package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relief-ops/checklist-cli/internal/model"
)

func action(who, what, when string, order int) model.Action {
	return model.Action{
		ID:             model.ActionID(who, what, when),
		Who:            who,
		What:           what,
		When:           when,
		References:     []model.SourceRef{{NodeID: "sec-1"}},
		TraversalOrder: order,
	}
}

func TestSimilarityIdentical(t *testing.T) {
	sim := Similarity("Medical Director", "Notify all staff.", "Medical Director", "Notify all staff.")
	assert.InDelta(t, 1.0, sim, 0.001)
}

func TestSimilarityCaseAndPunctuationInsensitive(t *testing.T) {
	sim := Similarity("MEDICAL DIRECTOR", "Notify all staff!", "medical director", "notify all staff.")
	assert.InDelta(t, 1.0, sim, 0.001)
}

func TestSimilarityDisjoint(t *testing.T) {
	sim := Similarity("Duty Officer", "Report case counts.", "Facility Manager", "Close the cafeteria.")
	assert.InDelta(t, 0.0, sim, 0.001)
}

func TestSimilarityEmptyIsZero(t *testing.T) {
	assert.Zero(t, Similarity("", "", "", ""))
	assert.Zero(t, Similarity("a", "b", "", ""))
}

func TestDedupeCollapsesSiblingSubjects(t *testing.T) {
	// The same protocol sentence repeated under two sibling sections.
	a := action("Medical Director", "Notify all staff of the activation.", "immediately", 1)
	b := action("Medical Director", "Notify all staff of the activation.", "immediately", 2)
	b.References = []model.SourceRef{{NodeID: "sec-2"}}

	res := Dedupe([]model.Action{a, b}, nil, DefaultConfig())

	require.Len(t, res.Canonical, 1)
	assert.Equal(t, 1, res.MergedCount)

	// Provenance is unioned: both originating sections stay traceable.
	got := res.Canonical[0]
	require.Len(t, got.References, 2)
	assert.Equal(t, "sec-1", got.References[0].NodeID)
	assert.Equal(t, "sec-2", got.References[1].NodeID)

	// The earlier action's id is canonical.
	assert.Equal(t, a.ID, got.ID)
}

func TestDedupeBelowThresholdKeptSeparate(t *testing.T) {
	a := action("Medical Director", "Notify all staff.", "immediately", 1)
	b := action("Duty Officer", "Report confirmed case counts to the region.", "within 24 hours", 2)

	res := Dedupe([]model.Action{a, b}, nil, DefaultConfig())
	assert.Len(t, res.Canonical, 2)
	assert.Zero(t, res.MergedCount)
}

func TestDedupeContradictingTimingBlocksMerge(t *testing.T) {
	a := action("Medical Director", "Notify all staff of the activation.", "within 2 hours", 1)
	b := action("Medical Director", "Notify all staff of the activation.", "within 6 hours", 2)

	res := Dedupe([]model.Action{a, b}, nil, DefaultConfig())
	assert.Len(t, res.Canonical, 2)
}

func TestDedupeEventTimingDoesNotBlockMerge(t *testing.T) {
	a := action("Medical Director", "Notify all staff of the activation.", "upon declaration", 1)
	b := action("Medical Director", "Notify all staff of the activation.", "within 2 hours", 2)

	res := Dedupe([]model.Action{a, b}, nil, DefaultConfig())
	assert.Len(t, res.Canonical, 1)
}

func TestDedupeFormulaBearingActionWinsMerge(t *testing.T) {
	// The same formula sentence extracted under two sections; only one
	// extraction resolved the formula reference.
	what := "Order surge beds. Calculate using formula: `beds = patients * 1.2`."
	plain := action("Logistics Officer", what, "within 1 day", 1)
	withFormula := action("Logistics Officer", what, "within 1 day", 2)
	withFormula.Formula = &model.FormulaRef{FormulaID: "sec-2-f1", Equation: "beds = patients * 1.2"}
	withFormula.References = []model.SourceRef{{NodeID: "sec-2"}}

	res := Dedupe([]model.Action{plain, withFormula}, nil, DefaultConfig())

	require.Len(t, res.Canonical, 1)
	got := res.Canonical[0]
	// The formula-bearing extraction wins the base slot, so the link to
	// the source formula survives and the equation text stays intact.
	require.NotNil(t, got.Formula)
	assert.Equal(t, "sec-2-f1", got.Formula.FormulaID)
	assert.Contains(t, got.What, "beds = patients * 1.2")
	assert.Len(t, got.References, 2)
}

func TestDedupeFlaggedMergesIntoComplete(t *testing.T) {
	complete := action("Medical Director", "Notify all staff of the activation.", "immediately", 1)
	flagged := model.FlaggedAction{
		Action:        action("Medical Director", "Notify all staff of the activation.", "", 2),
		MissingFields: []string{"when"},
	}
	flagged.Action.References = []model.SourceRef{{NodeID: "sec-3"}}

	res := Dedupe([]model.Action{complete}, []model.FlaggedAction{flagged}, DefaultConfig())

	// The complete action survives with its own id and absorbs provenance.
	require.Len(t, res.Canonical, 1)
	require.Empty(t, res.Flagged)
	assert.Equal(t, complete.ID, res.Canonical[0].ID)
	assert.Equal(t, "immediately", res.Canonical[0].When)
	assert.Len(t, res.Canonical[0].References, 2)
}

func TestDedupeFlaggedDeduplicatesAmongThemselves(t *testing.T) {
	fa := model.FlaggedAction{
		Action:        action("", "Escalate to the crisis committee for decision.", "immediately", 1),
		MissingFields: []string{"who"},
	}
	fb := model.FlaggedAction{
		Action:        action("", "Escalate to the crisis committee for decision.", "immediately", 2),
		MissingFields: []string{"who"},
	}

	res := Dedupe(nil, []model.FlaggedAction{fa, fb}, DefaultConfig())
	assert.Empty(t, res.Canonical)
	require.Len(t, res.Flagged, 1)
	assert.Equal(t, []string{"who"}, res.Flagged[0].MissingFields)
}

func TestDedupeAmbiguityWarning(t *testing.T) {
	// Ten of twelve shared tokens lands between 0.75 and 0.85.
	a := action("Medical Director", "Notify all staff of the activation and log the time.", "immediately", 1)
	b := action("Medical Director", "Notify all staff of the activation and log the outcome.", "immediately", 2)

	sim := Similarity(a.Who, a.What, b.Who, b.What)
	require.Greater(t, sim, 0.75)
	require.Less(t, sim, 0.85)

	res := Dedupe([]model.Action{a, b}, nil, DefaultConfig())

	assert.Len(t, res.Canonical, 2)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.WarnDeduplicationAmbiguity, res.Warnings[0].Kind)
	assert.Contains(t, res.Warnings[0].Detail, a.ID)
	assert.Contains(t, res.Warnings[0].Detail, b.ID)
}

func TestDedupeDeterministicRegardlessOfInputOrder(t *testing.T) {
	a := action("Medical Director", "Notify all staff of the activation.", "immediately", 1)
	b := action("Medical Director", "Notify all staff of the activation.", "immediately", 3)
	c := action("Duty Officer", "Report confirmed case counts to the region.", "within 24 hours", 2)

	r1 := Dedupe([]model.Action{a, b, c}, nil, DefaultConfig())
	r2 := Dedupe([]model.Action{c, b, a}, nil, DefaultConfig())

	require.Equal(t, len(r1.Canonical), len(r2.Canonical))
	for i := range r1.Canonical {
		assert.Equal(t, r1.Canonical[i].ID, r2.Canonical[i].ID)
	}
}

func TestDedupeNoResidualDuplicates(t *testing.T) {
	var in []model.Action
	for i := 0; i < 5; i++ {
		in = append(in, action("Medical Director", "Notify all staff of the activation.", "immediately", i))
	}
	res := Dedupe(in, nil, DefaultConfig())
	assert.Len(t, res.Canonical, 1)
	assert.Equal(t, 4, res.MergedCount)
}

func TestConfigWithDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.InDelta(t, 0.85, c.Threshold, 0.001)
	assert.Zero(t, c.AmbiguityMargin)

	c = Config{Threshold: 0.9, AmbiguityMargin: -1}.withDefaults()
	assert.InDelta(t, 0.9, c.Threshold, 0.001)
	assert.Zero(t, c.AmbiguityMargin)
}
