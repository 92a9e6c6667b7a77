package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relief-ops/checklist-cli/internal/config"
	"github.com/relief-ops/checklist-cli/internal/doctree"
	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/resilience"
	"github.com/relief-ops/checklist-cli/internal/roles"
	"github.com/relief-ops/checklist-cli/pkg/backend"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Extract.Concurrency = 2
	cfg.Extract.MaxAttempts = 1
	cfg.Extract.InitialBackoffMs = 1
	cfg.Extract.MaxBackoffMs = 2
	cfg.Extract.BackoffMult = 2.0
	cfg.Dedupe.Threshold = 0.85
	cfg.Dedupe.AmbiguityMargin = 0.10
	cfg.Selector.IncludeFlagged = false
	cfg.Anthropic.Model = "claude-haiku-4-5-20251001"
	return cfg
}

func testResolver() *roles.Resolver {
	tax := &roles.Taxonomy{Roles: []roles.Role{
		{ID: "medical-director", Title: "Medical Director", Level: "local", Aliases: []string{"the medical director"}},
		{ID: "duty-officer", Title: "Duty Officer", Level: "regional"},
	}}
	return roles.NewResolver(tax, 0.6)
}

func testDocument() *doctree.Document {
	return &doctree.Document{
		Title: "Pandemic Response Plan",
		Root: &model.DocumentNode{
			ID:    "root",
			Title: "Plan",
			Children: []*model.DocumentNode{
				{ID: "sec-1", Title: "Alerting", Text: "The medical director must notify staff."},
				{ID: "sec-2", Title: "Reporting", Text: "The duty officer must report case counts."},
			},
		},
	}
}

func respond(actions ...model.RawAction) *backend.NodeResponse {
	return &backend.NodeResponse{
		Actions: actions,
		Usage:   backend.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func TestRunHappyPath(t *testing.T) {
	st := newHappyStore()
	be := &mockBackend{}
	be.On("Extract", mock.Anything, mock.MatchedBy(func(r backend.NodeRequest) bool { return r.NodeID == "sec-1" })).
		Return(respond(model.RawAction{
			Who:       "Medical Director",
			What:      "Notify all staff of activation.",
			When:      "immediately",
			Level:     "local",
			Reference: model.SourceRef{NodeID: "sec-1"},
		}), nil)
	be.On("Extract", mock.Anything, mock.MatchedBy(func(r backend.NodeRequest) bool { return r.NodeID == "sec-2" })).
		Return(respond(model.RawAction{
			Who:       "Duty Officer",
			What:      "Report confirmed case counts to the regional office.",
			When:      "within 24 hours",
			Reference: model.SourceRef{NodeID: "sec-2"},
		}), nil)
	be.On("Extract", mock.Anything, mock.Anything).Return(respond(), nil)

	p := New(testConfig(), st, be, testResolver())
	res, err := p.Run(context.Background(), testDocument())
	require.NoError(t, err)

	assert.Equal(t, model.StageDone, res.State.Stage)
	assert.Equal(t, 3, res.State.Metadata.NodesTotal)
	assert.Zero(t, res.State.Metadata.NodesFailed)
	assert.Len(t, res.State.CompleteActions, 2)
	assert.NotNil(t, res.Checklist)
	assert.Contains(t, res.Markdown, "Notify all staff")

	// Every action carries timing and a resolved role after normalization.
	for _, a := range res.State.CompleteActions {
		require.NotNil(t, a.Timing)
		require.NotNil(t, a.Role)
		assert.False(t, a.Role.Unresolved)
	}

	st.AssertCalled(t, "CompleteRun", mock.Anything, "run-1", model.RunStatusComplete, mock.Anything)
}

func TestRunNodeFailureIsIsolated(t *testing.T) {
	st := newHappyStore()
	be := &mockBackend{}
	be.On("Extract", mock.Anything, mock.MatchedBy(func(r backend.NodeRequest) bool { return r.NodeID == "sec-1" })).
		Return(nil, eris.New("backend: malformed response"))
	be.On("Extract", mock.Anything, mock.Anything).
		Return(respond(model.RawAction{
			Who:       "Duty Officer",
			What:      "Report confirmed case counts.",
			When:      "within 24 hours",
			Reference: model.SourceRef{NodeID: "sec-2"},
		}), nil)

	p := New(testConfig(), st, be, testResolver())
	res, err := p.Run(context.Background(), testDocument())
	require.NoError(t, err)

	// A single failed node degrades the output, never the run.
	assert.Equal(t, model.StageDone, res.State.Stage)
	assert.Equal(t, 1, res.State.Metadata.NodesFailed)
	assert.Len(t, res.State.CompleteActions, 1)

	var warned bool
	for _, w := range res.State.Metadata.Warnings {
		if w.Kind == model.WarnNodeFailed {
			warned = true
		}
	}
	assert.True(t, warned, "expected node_failed warning")

	st.AssertCalled(t, "EnqueueQuarantine", mock.Anything, mock.MatchedBy(func(q resilience.QuarantinedNode) bool {
		return q.NodeID == "sec-1" && q.RunID == "run-1" && q.ID != ""
	}))
	st.AssertCalled(t, "CompleteRun", mock.Anything, "run-1", model.RunStatusComplete, mock.Anything)
}

func TestRunAllNodesFailedFailsRun(t *testing.T) {
	st := newHappyStore()
	be := &mockBackend{}
	be.On("Extract", mock.Anything, mock.Anything).Return(nil, eris.New("backend: down"))

	p := New(testConfig(), st, be, testResolver())
	res, err := p.Run(context.Background(), testDocument())
	require.Error(t, err)

	assert.Equal(t, model.StageFailed, res.State.Stage)
	st.AssertCalled(t, "CompleteRun", mock.Anything, "run-1", model.RunStatusFailed, mock.Anything)
	// Failed nodes are still quarantined for a later retry.
	st.AssertCalled(t, "EnqueueQuarantine", mock.Anything, mock.Anything)
}

func TestRunMalformedTreeFails(t *testing.T) {
	st := newHappyStore()
	be := &mockBackend{}

	doc := &doctree.Document{
		Title: "Broken",
		Root: &model.DocumentNode{
			ID: "root",
			Children: []*model.DocumentNode{
				{ID: "dup"},
				{ID: "dup"},
			},
		},
	}

	p := New(testConfig(), st, be, testResolver())
	res, err := p.Run(context.Background(), doc)
	require.Error(t, err)

	assert.Equal(t, model.StageFailed, res.State.Stage)
	be.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	st.AssertCalled(t, "CompleteRun", mock.Anything, "run-1", model.RunStatusFailed, mock.Anything)
}

func TestRunCancelledContextFails(t *testing.T) {
	st := newHappyStore()
	be := &mockBackend{}
	be.On("Extract", mock.Anything, mock.Anything).Return(respond(), nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(testConfig(), st, be, testResolver())
	res, err := p.Run(ctx, testDocument())
	require.Error(t, err)
	assert.Equal(t, model.StageFailed, res.State.Stage)
}

func TestRunDeterministicAcrossReruns(t *testing.T) {
	run := func() []model.Action {
		st := newHappyStore()
		be := &mockBackend{}
		be.On("Extract", mock.Anything, mock.MatchedBy(func(r backend.NodeRequest) bool { return r.NodeID == "sec-1" })).
			Return(respond(
				model.RawAction{
					Who:       "Medical Director",
					What:      "Notify all staff of activation.",
					When:      "immediately",
					Reference: model.SourceRef{NodeID: "sec-1"},
				},
				model.RawAction{
					Who:       "The Medical Director",
					What:      "Notify all staff of activation procedures.",
					When:      "immediately",
					Reference: model.SourceRef{NodeID: "sec-1", Start: 10},
				},
			), nil)
		be.On("Extract", mock.Anything, mock.Anything).Return(respond(), nil)

		p := New(testConfig(), st, be, testResolver())
		res, err := p.Run(context.Background(), testDocument())
		require.NoError(t, err)
		return res.State.CompleteActions
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].What, second[i].What)
	}
}

func TestRunUnresolvedRoleIsFlaggedNotDropped(t *testing.T) {
	st := newHappyStore()
	be := &mockBackend{}
	be.On("Extract", mock.Anything, mock.MatchedBy(func(r backend.NodeRequest) bool { return r.NodeID == "sec-1" })).
		Return(respond(model.RawAction{
			Who:       "Chief Astrologer",
			What:      "Consult the star charts.",
			When:      "upon activation",
			Reference: model.SourceRef{NodeID: "sec-1"},
		}), nil)
	be.On("Extract", mock.Anything, mock.Anything).Return(respond(), nil)

	p := New(testConfig(), st, be, testResolver())
	res, err := p.Run(context.Background(), testDocument())
	require.NoError(t, err)

	require.Len(t, res.State.CompleteActions, 1)
	a := res.State.CompleteActions[0]
	require.NotNil(t, a.Role)
	assert.True(t, a.Role.Unresolved)
	assert.Equal(t, 1, res.State.Metadata.UnresolvedRoles)
	assert.Contains(t, res.Markdown, "NEEDS ASSIGNMENT")
}
