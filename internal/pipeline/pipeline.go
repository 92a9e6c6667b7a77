// Package pipeline orchestrates the document-to-checklist stages: ingest,
// extract, dedupe, select, normalize, format. Stage outputs are immutable
// snapshots; each stage consumes the previous state and produces a new one.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/relief-ops/checklist-cli/internal/config"
	"github.com/relief-ops/checklist-cli/internal/dedupe"
	"github.com/relief-ops/checklist-cli/internal/doctree"
	"github.com/relief-ops/checklist-cli/internal/extract"
	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/render"
	"github.com/relief-ops/checklist-cli/internal/resilience"
	"github.com/relief-ops/checklist-cli/internal/roles"
	"github.com/relief-ops/checklist-cli/internal/selector"
	"github.com/relief-ops/checklist-cli/internal/store"
	"github.com/relief-ops/checklist-cli/internal/timing"
	"github.com/relief-ops/checklist-cli/pkg/backend"
)

// Pipeline wires the extraction backend, the run store, and the role
// resolver into the staged checklist flow.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	client   backend.Client
	resolver *roles.Resolver
}

// New creates a Pipeline. The resolver may be nil; role annotation then
// marks every action unresolved.
func New(cfg *config.Config, st store.Store, client backend.Client, resolver *roles.Resolver) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, client: client, resolver: resolver}
}

// Result is the outcome of one run over a document.
type Result struct {
	RunID     string
	State     model.PipelineState
	Checklist *model.ChecklistDocument
	Markdown  string
	Usage     backend.TokenUsage
	Stages    []model.StageRecord
	Duration  time.Duration
}

// Run executes the full pipeline over a parsed document. Node-level
// extraction failures degrade the output and are quarantined for retry;
// only a malformed tree, a cancelled context, or store bookkeeping on the
// run record itself are fatal.
func (p *Pipeline) Run(ctx context.Context, doc *doctree.Document) (*Result, error) {
	started := time.Now()
	log := zap.L().With(zap.String("document", doc.Title))
	log.Info("pipeline: starting run")

	run, err := p.store.CreateRun(ctx, doc.Title)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	result := &Result{RunID: run.ID}
	log = log.With(zap.String("run_id", run.ID))

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	trackStage := func(name string, fn func() error) error {
		rec, recErr := p.store.CreateStage(ctx, run.ID, name)
		if recErr != nil {
			log.Warn("pipeline: failed to create stage record", zap.String("stage", name), zap.Error(recErr))
		}

		start := time.Now()
		fnErr := fn()
		duration := time.Since(start).Milliseconds()

		status := model.StageStatusComplete
		errMsg := ""
		if fnErr != nil {
			status = model.StageStatusFailed
			errMsg = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if rec != nil {
			if doneErr := p.store.CompleteStage(ctx, rec.ID, status, duration, errMsg); doneErr != nil {
				log.Warn("pipeline: failed to complete stage record", zap.Error(doneErr))
			}
			rec.Status = status
			rec.Error = errMsg
			rec.Duration = duration
			result.Stages = append(result.Stages, *rec)
		}
		return fnErr
	}

	fail := func(stageErr error) (*Result, error) {
		result.State = result.State.WithStage(model.StageFailed)
		setStatus(model.RunStatusFailed)
		if doneErr := p.store.CompleteRun(ctx, run.ID, model.RunStatusFailed, stageErr.Error()); doneErr != nil {
			log.Warn("pipeline: failed to finalize run", zap.Error(doneErr))
		}
		return result, stageErr
	}

	// ===== Ingest =====
	var nodes []*model.DocumentNode
	if err := trackStage("ingest", func() error {
		if validateErr := doctree.Validate(doc.Root); validateErr != nil {
			return validateErr
		}
		nodes = doctree.Flatten(doc.Root)
		return nil
	}); err != nil {
		return fail(err)
	}

	state := model.PipelineState{Stage: model.StageIngested}
	state.Metadata.NodesTotal = len(nodes)

	// ===== Extract =====
	setStatus(model.RunStatusExtracting)
	var agg *extract.Aggregate
	if err := trackStage("extract", func() error {
		ext := extract.New(p.client)
		agg = ext.ExtractAll(ctx, nodes, p.poolConfig())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if len(agg.Failed) == len(nodes) && len(nodes) > 0 {
			return eris.New("pipeline: every node failed extraction")
		}
		return nil
	}); err != nil {
		if agg != nil {
			p.quarantineFailed(ctx, run.ID, agg.Failed, log)
		}
		return fail(err)
	}
	p.quarantineFailed(ctx, run.ID, agg.Failed, log)

	state = state.WithStage(model.StageExtracted)
	state.CompleteActions = agg.Complete
	state.FlaggedActions = agg.Flagged
	state.Tables = agg.Tables
	state.Metadata.NodesFailed = len(agg.Failed)
	state.Metadata.ActionsExtracted = len(agg.Complete) + len(agg.Flagged)
	state.Metadata.ActionsWithFormulas = agg.FormulasIntegrated
	state.Metadata.InputTokens = agg.Usage.InputTokens
	state.Metadata.OutputTokens = agg.Usage.OutputTokens
	state.Metadata.Warnings = append(state.Metadata.Warnings, agg.Warnings...)
	result.Usage = agg.Usage

	// ===== Dedupe =====
	setStatus(model.RunStatusMerging)
	var merged *dedupe.Result
	if err := trackStage("dedupe", func() error {
		merged = dedupe.Dedupe(state.CompleteActions, state.FlaggedActions, dedupe.Config{
			Threshold:       p.cfg.Dedupe.Threshold,
			AmbiguityMargin: p.cfg.Dedupe.AmbiguityMargin,
		})
		return nil
	}); err != nil {
		return fail(err)
	}

	state = state.WithStage(model.StageDeduplicated)
	state.CompleteActions = merged.Canonical
	state.FlaggedActions = merged.Flagged
	state.Metadata.MergedCount = merged.MergedCount
	state.Metadata.Warnings = append(state.Metadata.Warnings, merged.Warnings...)

	// ===== Select =====
	var selected *selector.Result
	if err := trackStage("select", func() error {
		selected = selector.Select(state.CompleteActions, state.FlaggedActions, p.selectorPolicy())
		return nil
	}); err != nil {
		return fail(err)
	}

	state = state.WithStage(model.StageSelected)
	state.CompleteActions = selected.Included
	state.ExcludedActions = selected.Excluded
	state.Metadata.FlaggedCount = len(state.FlaggedActions)

	// ===== Normalize =====
	if err := trackStage("normalize", func() error {
		normalized := make([]model.Action, len(state.CompleteActions))
		unresolved := 0
		for i, a := range state.CompleteActions {
			a = timing.Annotate(a)
			if p.resolver != nil {
				a = p.resolver.Annotate(a)
			} else {
				a.Role = &model.RoleAssignment{Unresolved: true}
			}
			if a.Role.Unresolved {
				unresolved++
				state.Metadata = state.Metadata.AddWarning(model.WarnUnresolvedRole, a.Who)
			}
			normalized[i] = a
		}
		state.CompleteActions = normalized
		state.Metadata.UnresolvedRoles = unresolved
		return nil
	}); err != nil {
		return fail(err)
	}
	state = state.WithStage(model.StageNormalized)

	// ===== Format =====
	setStatus(model.RunStatusRendering)
	if err := trackStage("format", func() error {
		result.Checklist = render.Format(doc, state.CompleteActions, state.Tables, state.Metadata)
		result.Markdown = render.Markdown(result.Checklist)
		return nil
	}); err != nil {
		return fail(err)
	}
	state = state.WithStage(model.StageFormatted)

	// ===== Finalize =====
	state = state.WithStage(model.StageDone)
	result.State = state
	result.Duration = time.Since(started)

	summary, marshalErr := json.Marshal(state.Metadata)
	if marshalErr != nil {
		log.Warn("pipeline: failed to marshal run summary", zap.Error(marshalErr))
		summary = []byte("{}")
	}
	if doneErr := p.store.CompleteRun(ctx, run.ID, model.RunStatusComplete, string(summary)); doneErr != nil {
		log.Warn("pipeline: failed to finalize run", zap.Error(doneErr))
	}
	result.Usage.LogCost(p.cfg.Anthropic.Model, run.ID)

	log.Info("pipeline: run complete",
		zap.Int("nodes", state.Metadata.NodesTotal),
		zap.Int("nodes_failed", state.Metadata.NodesFailed),
		zap.Int("actions", len(state.CompleteActions)),
		zap.Int("flagged", state.Metadata.FlaggedCount),
		zap.Int("merged", state.Metadata.MergedCount),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (p *Pipeline) poolConfig() extract.PoolConfig {
	cfg := extract.PoolConfig{
		Concurrency: p.cfg.Extract.Concurrency,
		Retry: resilience.PolicyFromConfig(
			p.cfg.Extract.MaxAttempts,
			p.cfg.Extract.InitialBackoffMs,
			p.cfg.Extract.MaxBackoffMs,
			p.cfg.Extract.BackoffMult,
		),
	}
	if p.cfg.Extract.BreakerThreshold > 0 {
		cfg.Breaker = resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: p.cfg.Extract.BreakerThreshold,
			ResetTimeout:     time.Duration(p.cfg.Extract.BreakerResetSecs) * time.Second,
		})
	}
	return cfg
}

func (p *Pipeline) selectorPolicy() selector.Policy {
	policy := selector.Policy{
		IncludeFlagged:      p.cfg.Selector.IncludeFlagged,
		MinOperationalLevel: model.ParseOperationalLevel(p.cfg.Selector.MinLevel),
	}
	if len(p.cfg.Selector.ExcludeSubjects) > 0 {
		policy.ExcludeSubjects = make(map[string]bool, len(p.cfg.Selector.ExcludeSubjects))
		for _, id := range p.cfg.Selector.ExcludeSubjects {
			policy.ExcludeSubjects[id] = true
		}
	}
	return policy
}

func (p *Pipeline) quarantineFailed(ctx context.Context, runID string, failed []extract.FailedNode, log *zap.Logger) {
	now := time.Now().UTC()
	for _, f := range failed {
		entry := resilience.QuarantinedNode{
			ID:           uuid.New().String(),
			RunID:        runID,
			NodeID:       f.NodeID,
			NodeTitle:    f.Title,
			Error:        f.Err.Error(),
			ErrorClass:   f.ErrorClass(),
			RetryCount:   0,
			MaxRetries:   p.cfg.Extract.MaxAttempts,
			NextRetryAt:  now.Add(5 * time.Minute),
			CreatedAt:    now,
			LastFailedAt: now,
		}
		if err := p.store.EnqueueQuarantine(ctx, entry); err != nil {
			log.Warn("pipeline: failed to quarantine node",
				zap.String("node_id", f.NodeID),
				zap.Error(err),
			)
		}
	}
}
