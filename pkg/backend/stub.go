package backend

import (
	"context"
	"strings"

	"github.com/relief-ops/checklist-cli/internal/model"
)

// Compile-time interface check.
var _ Client = (*StubClient)(nil)

// StubClient implements Client with a canned per-node response. It splits
// the node text on sentence boundaries and emits one action per sentence
// that mentions an obligation keyword, which is enough for offline runs and
// demos without an API key.
type StubClient struct{}

var obligationWords = []string{"must", "shall", "obligated", "required", "responsible"}

// Extract implements Client.
func (s *StubClient) Extract(_ context.Context, req NodeRequest) (*NodeResponse, error) {
	resp := &NodeResponse{
		Tables: req.Tables,
		Usage:  TokenUsage{InputTokens: int64(len(req.Text) / 4), OutputTokens: 50},
	}

	offset := 0
	for _, sentence := range strings.Split(req.Text, ".") {
		trimmed := strings.TrimSpace(sentence)
		lower := strings.ToLower(trimmed)
		for _, w := range obligationWords {
			if strings.Contains(lower, w) {
				resp.Actions = append(resp.Actions, model.RawAction{
					Who:  firstWord(trimmed),
					What: trimmed,
					When: "ongoing",
					Reference: model.SourceRef{
						NodeID: req.NodeID,
						Start:  offset,
						End:    offset + len(sentence),
					},
				})
				break
			}
		}
		offset += len(sentence) + 1
	}
	return resp, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(fields[0], ",:;"))
}
