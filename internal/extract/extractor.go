// Package extract turns document nodes into validated actions through the
// extraction backend: formula integration, schema validation, and the
// bounded fan-out over the node tree.
package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/resilience"
	"github.com/relief-ops/checklist-cli/pkg/backend"
)

// formulaSuffix is the standardized text appended to an action description
// when a formula is integrated into it.
const formulaSuffix = " Calculate using formula: `%s`. Example: `%s`."

// formulaExamplePlaceholder stands in when no worked example can be
// computed from the source.
const formulaExamplePlaceholder = "to be computed per facility"

// NodeResult is one node's validated contribution.
type NodeResult struct {
	Complete           []model.Action
	Flagged            []model.FlaggedAction
	Tables             []model.Table
	FormulasIntegrated int
	Warnings           []model.Warning
	Usage              backend.TokenUsage
}

// Extractor validates and enriches the backend's raw output for one node.
type Extractor struct {
	client backend.Client
}

// New creates an Extractor over the given backend client.
func New(client backend.Client) *Extractor {
	return &Extractor{client: client}
}

// ExtractNode calls the backend once for the node and post-processes the
// raw output: formulas are integrated into their owning actions, then every
// raw action is classified complete or flagged. The backend call itself is
// not retried here; retry policy belongs to the caller.
func (e *Extractor) ExtractNode(ctx context.Context, node *model.DocumentNode, traversalOrder int) (*NodeResult, error) {
	resp, err := e.client.Extract(ctx, backend.NodeRequest{
		NodeID:   node.ID,
		Title:    node.Title,
		Text:     node.Text,
		Tables:   node.Tables,
		Formulas: node.Formulas,
	})
	if err != nil {
		return nil, err
	}

	result := &NodeResult{Usage: resp.Usage}

	raws := resp.Actions
	formulas := nodeFormulas(node)
	integrated := integrateFormulas(node.ID, raws, formulas, result)

	for i, raw := range raws {
		action := model.Action{
			Who:             strings.TrimSpace(raw.Who),
			What:            strings.TrimSpace(raw.What),
			When:            strings.TrimSpace(raw.When),
			Context:         strings.TrimSpace(raw.Context),
			Level:           model.ParseOperationalLevel(raw.Level),
			References:      []model.SourceRef{raw.Reference},
			TraversalOrder:  traversalOrder,
			ExtractionOrder: i,
		}
		if f, ok := integrated[i]; ok {
			action.What = integratedWhat(action.What, f.Equation)
			action.Formula = &model.FormulaRef{
				FormulaID: f.ID,
				Equation:  f.Equation,
				Reference: f.Reference,
			}
			result.FormulasIntegrated++
		}
		action.ID = model.ActionID(action.Who, action.What, action.When)

		if missing := missingFields(action); len(missing) > 0 {
			result.Flagged = append(result.Flagged, model.FlaggedAction{
				Action:        action,
				MissingFields: missing,
			})
			continue
		}
		result.Complete = append(result.Complete, action)
	}

	for i, t := range resp.Tables {
		result.Tables = append(result.Tables, model.Table{
			ID:        fmt.Sprintf("%s-t%d", node.ID, i+1),
			Header:    t.Header,
			Rows:      t.Rows,
			Reference: model.SourceRef{NodeID: node.ID},
		})
	}

	return result, nil
}

// nodeFormulas assigns identities to the node's raw formula strings.
func nodeFormulas(node *model.DocumentNode) []model.Formula {
	out := make([]model.Formula, 0, len(node.Formulas))
	for i, eq := range node.Formulas {
		out = append(out, model.Formula{
			ID:        fmt.Sprintf("%s-f%d", node.ID, i+1),
			Equation:  strings.TrimSpace(eq),
			Reference: model.SourceRef{NodeID: node.ID},
		})
	}
	return out
}

// integrateFormulas resolves each formula to the index of the raw action
// that owns it. Ownership is a consuming transfer: a formula binds to at
// most one action and is never copied. An unclaimed formula attaches to the
// node's single action when only one exists; otherwise it is dropped with
// a warning rather than guessed into an unrelated action.
func integrateFormulas(nodeID string, raws []model.RawAction, formulas []model.Formula, result *NodeResult) map[int]model.Formula {
	owned := make(map[int]model.Formula)
	for _, f := range formulas {
		idx := -1
		for i, raw := range raws {
			if _, taken := owned[i]; taken {
				continue
			}
			if strings.TrimSpace(raw.FormulaRef) == f.Equation {
				idx = i
				break
			}
		}
		if idx < 0 && len(raws) == 1 {
			if _, taken := owned[0]; !taken {
				idx = 0
			}
		}
		if idx < 0 {
			zap.L().Warn("unresolved formula discarded",
				zap.String("node_id", nodeID),
				zap.String("formula_id", f.ID),
			)
			result.Warnings = append(result.Warnings, model.Warning{
				Kind:   model.WarnUnresolvedFormula,
				Detail: fmt.Sprintf("formula %s in node %s has no confidently linked action", f.ID, nodeID),
			})
			continue
		}
		owned[idx] = f
	}
	return owned
}

// integratedWhat builds the new description with the standardized formula
// suffix. The equation appears verbatim, which is what the formula
// integration invariant checks.
func integratedWhat(what, equation string) string {
	return what + fmt.Sprintf(formulaSuffix, equation, formulaExamplePlaceholder)
}

func missingFields(a model.Action) []string {
	var missing []string
	if a.Who == "" {
		missing = append(missing, "who")
	}
	if a.What == "" {
		missing = append(missing, "what")
	}
	if a.When == "" {
		missing = append(missing, "when")
	}
	return missing
}

// FailedNode records a node whose extraction exhausted its retries.
type FailedNode struct {
	NodeID   string
	Title    string
	Err      error
	Attempts int
}

// ErrorClass exposes the failure class for quarantine records.
func (f FailedNode) ErrorClass() string {
	return resilience.Classify(f.Err)
}
