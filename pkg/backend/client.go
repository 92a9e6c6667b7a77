// Package backend defines the extraction backend consumed per document
// node, plus the Claude-backed implementation used in production.
package backend

import (
	"context"

	"go.uber.org/zap"

	"github.com/relief-ops/checklist-cli/internal/model"
)

// Client is the per-node extraction service. A single call covers one node:
// its text, embedded tables, and embedded formula strings go in; raw
// candidate actions and raw tables come out. Malformed responses are a call
// failure, never a data shape downstream code recovers from.
type Client interface {
	Extract(ctx context.Context, req NodeRequest) (*NodeResponse, error)
}

// NodeRequest carries one document node to the backend.
type NodeRequest struct {
	NodeID   string
	Title    string
	Text     string
	Tables   []model.TableBlock
	Formulas []string
}

// NodeResponse is the backend's raw output for one node.
type NodeResponse struct {
	Actions []model.RawAction
	Tables  []model.TableBlock
	Usage   TokenUsage
}

// TokenUsage tracks token consumption per backend call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// modelPricing maps model ids to {input $/MTok, output $/MTok}.
var modelPricing = map[string][2]float64{
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
}

// EstimateCost computes an estimated cost in USD for a model. Unknown
// models return 0.
func (u TokenUsage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return (float64(u.InputTokens)/1e6)*pricing[0] + (float64(u.OutputTokens)/1e6)*pricing[1]
}

// LogCost logs token usage and estimated cost for a run.
func (u TokenUsage) LogCost(model, runID string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("run_id", runID),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
