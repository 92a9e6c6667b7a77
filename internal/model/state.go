package model

// Stage names the pipeline states in execution order. Failed is terminal and
// reachable only from a pipeline-level fault, never from a node-level one.
type Stage string

const (
	StageIngested     Stage = "ingested"
	StageExtracted    Stage = "extracted"
	StageDeduplicated Stage = "deduplicated"
	StageSelected     Stage = "selected"
	StageNormalized   Stage = "normalized"
	StageFormatted    Stage = "formatted"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Warning is a non-fatal condition surfaced in the metadata report.
type Warning struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Warning kinds attached by pipeline stages.
const (
	WarnUnresolvedFormula      = "unresolved_formula"
	WarnDeduplicationAmbiguity = "deduplication_ambiguity"
	WarnUnresolvedRole         = "unresolved_role"
	WarnNodeFailed             = "node_failed"
)

// Metadata is the counter map threaded through the pipeline and emitted
// alongside the checklist.
type Metadata struct {
	NodesTotal          int         `json:"nodes_total"`
	NodesFailed         int         `json:"nodes_failed"`
	ActionsExtracted    int         `json:"actions_extracted"`
	ActionsWithFormulas int         `json:"actions_with_formulas"`
	FlaggedCount        int         `json:"flagged_count"`
	MergedCount         int         `json:"merged_count"`
	UnresolvedRoles     int         `json:"unresolved_roles"`
	InputTokens         int64       `json:"input_tokens"`
	OutputTokens        int64       `json:"output_tokens"`
	Warnings            []Warning   `json:"warnings,omitempty"`
}

// AddWarning appends a warning and returns the metadata by value, keeping
// the caller's copy-on-write discipline.
func (m Metadata) AddWarning(kind, detail string) Metadata {
	m.Warnings = append(cloneWarnings(m.Warnings), Warning{Kind: kind, Detail: detail})
	return m
}

func cloneWarnings(ws []Warning) []Warning {
	if len(ws) == 0 {
		return nil
	}
	out := make([]Warning, len(ws))
	copy(out, ws)
	return out
}

// PipelineState is the value threaded through the orchestrator. Each stage
// consumes one state and produces a new one; no stage mutates another
// stage's output in place.
type PipelineState struct {
	Stage           Stage           `json:"stage"`
	CompleteActions []Action        `json:"complete_actions"`
	FlaggedActions  []FlaggedAction `json:"flagged_actions"`
	ExcludedActions []Action        `json:"excluded_actions,omitempty"`
	Tables          []Table         `json:"tables"`
	Metadata        Metadata        `json:"metadata"`
}

// WithStage returns a copy of the state advanced to the given stage. Slices
// are shared intentionally: stages never edit a prior state's slices, they
// build replacements.
func (s PipelineState) WithStage(stage Stage) PipelineState {
	s.Stage = stage
	return s
}
