package extract

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/resilience"
	"github.com/relief-ops/checklist-cli/pkg/backend"
)

// PoolConfig tunes the extraction fan-out.
type PoolConfig struct {
	// Concurrency bounds simultaneous backend calls. The limit exists for
	// the backend's rate limits, not local CPU. Default: 4.
	Concurrency int

	// Retry is the per-node retry policy.
	Retry resilience.Policy

	// Breaker optionally guards the backend; nil disables circuit breaking.
	Breaker *resilience.Breaker
}

// Aggregate is the whole-document extraction outcome, assembled in node
// traversal order regardless of task completion order.
type Aggregate struct {
	Complete           []model.Action
	Flagged            []model.FlaggedAction
	Tables             []model.Table
	Failed             []FailedNode
	Warnings           []model.Warning
	FormulasIntegrated int
	Usage              backend.TokenUsage
}

// ExtractAll fans extraction out over the nodes with a bounded worker pool
// and aggregates once every node (including retries) has resolved. A node
// that keeps failing contributes zero actions and a Failed entry; it never
// aborts the run. Cancelling ctx stops dispatch of not-yet-started nodes
// while letting in-flight calls finish or time out; completed node results
// are always kept.
func (e *Extractor) ExtractAll(ctx context.Context, nodes []*model.DocumentNode, cfg PoolConfig) *Aggregate {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	type slot struct {
		result *NodeResult
		failed *FailedNode
	}
	slots := make([]slot, len(nodes))

	// The group context is deliberately not used to abort siblings: node
	// failure is node-local. Only the caller's ctx cancels dispatch.
	g := &errgroup.Group{}
	g.SetLimit(concurrency)

	var mu sync.Mutex
	for i, node := range nodes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			attempts := 0
			policy := cfg.Retry
			policy.OnRetry = func(attempt int, err error) {
				attempts = attempt
				resilience.RetryLogger(node.ID)(attempt, err)
			}

			result, err := resilience.Do(ctx, policy, func(ctx context.Context) (*NodeResult, error) {
				if cfg.Breaker != nil {
					return resilience.Call(ctx, cfg.Breaker, func(ctx context.Context) (*NodeResult, error) {
						return e.ExtractNode(ctx, node, i)
					})
				}
				return e.ExtractNode(ctx, node, i)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Error("node extraction failed",
					zap.String("node_id", node.ID),
					zap.Int("attempts", attempts+1),
					zap.Error(err),
				)
				slots[i].failed = &FailedNode{
					NodeID:   node.ID,
					Title:    node.Title,
					Err:      err,
					Attempts: attempts + 1,
				}
				return nil
			}
			slots[i].result = result
			return nil
		})
	}
	_ = g.Wait()

	// Assemble in traversal order so canonical ids are reproducible.
	agg := &Aggregate{}
	for i := range slots {
		if f := slots[i].failed; f != nil {
			agg.Failed = append(agg.Failed, *f)
			agg.Warnings = append(agg.Warnings, model.Warning{
				Kind:   model.WarnNodeFailed,
				Detail: f.NodeID + ": " + f.Err.Error(),
			})
			continue
		}
		r := slots[i].result
		if r == nil {
			continue // dispatch was cancelled before this node started
		}
		agg.Complete = append(agg.Complete, r.Complete...)
		agg.Flagged = append(agg.Flagged, r.Flagged...)
		agg.Tables = append(agg.Tables, r.Tables...)
		agg.Warnings = append(agg.Warnings, r.Warnings...)
		agg.FormulasIntegrated += r.FormulasIntegrated
		agg.Usage.Add(r.Usage)
	}
	return agg
}
