package backend

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/relief-ops/checklist-cli/internal/model"
)

// wireResponse is the JSON shape the model is asked to return.
type wireResponse struct {
	Actions []wireAction      `json:"actions"`
	Tables  []model.TableBlock `json:"tables"`
}

type wireAction struct {
	Who        string   `json:"who"`
	What       string   `json:"what"`
	When       string   `json:"when"`
	Context    string   `json:"context"`
	Level      string   `json:"level"`
	FormulaRef string   `json:"formula_ref"`
	Span       wireSpan `json:"span"`
}

type wireSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// decodeNodeResponse parses the model's text into a NodeResponse. Any parse
// failure is reported as a call failure; the contract guarantees no partial
// JSON is ever handed downstream.
func decodeNodeResponse(nodeID, text string) (*NodeResponse, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.Errorf("backend: empty response for node %s", nodeID)
	}

	var wire wireResponse
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, eris.Wrapf(err, "backend: malformed response for node %s", nodeID)
	}

	resp := &NodeResponse{Tables: wire.Tables}
	for _, a := range wire.Actions {
		resp.Actions = append(resp.Actions, model.RawAction{
			Who:     a.Who,
			What:    a.What,
			When:    a.When,
			Context: a.Context,
			Level:   a.Level,
			Reference: model.SourceRef{
				NodeID: nodeID,
				Start:  a.Span.Start,
				End:    a.Span.End,
			},
			FormulaRef: a.FormulaRef,
		})
	}
	return resp, nil
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or prose wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
