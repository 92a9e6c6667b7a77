package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relief-ops/checklist-cli/internal/model"
)

const validResponse = `{
  "actions": [
    {
      "who": "Medical Director",
      "what": "Notify all staff of the activation.",
      "when": "immediately",
      "context": "Upon declaration of the emergency",
      "level": "local",
      "span": {"start": 10, "end": 62}
    },
    {
      "who": "Logistics Officer",
      "what": "Order surge bed capacity.",
      "when": "within 1 day",
      "formula_ref": "beds = patients * 1.2",
      "span": {"start": 70, "end": 110}
    }
  ],
  "tables": [
    {"header": ["Role", "Phone"], "rows": [["Duty Officer", "112"]]}
  ]
}`

func TestDecodeNodeResponse(t *testing.T) {
	resp, err := decodeNodeResponse("sec-1", validResponse)
	require.NoError(t, err)

	require.Len(t, resp.Actions, 2)
	a := resp.Actions[0]
	assert.Equal(t, "Medical Director", a.Who)
	assert.Equal(t, "Notify all staff of the activation.", a.What)
	assert.Equal(t, "immediately", a.When)
	assert.Equal(t, "local", a.Level)
	assert.Equal(t, "sec-1", a.Reference.NodeID)
	assert.Equal(t, 10, a.Reference.Start)
	assert.Equal(t, 62, a.Reference.End)

	assert.Equal(t, "beds = patients * 1.2", resp.Actions[1].FormulaRef)

	require.Len(t, resp.Tables, 1)
	assert.Equal(t, []string{"Role", "Phone"}, resp.Tables[0].Header)
}

func TestDecodeNodeResponseFenced(t *testing.T) {
	fenced := "```json\n" + validResponse + "\n```"
	resp, err := decodeNodeResponse("sec-1", fenced)
	require.NoError(t, err)
	assert.Len(t, resp.Actions, 2)
}

func TestDecodeNodeResponseProseWrapped(t *testing.T) {
	wrapped := "Here is the extraction:\n" + `{"actions": [{"who": "Duty Officer", "what": "Report counts.", "when": "daily", "span": {"start": 0, "end": 10}}], "tables": []}` + "\nLet me know if you need more."
	resp, err := decodeNodeResponse("sec-2", wrapped)
	require.NoError(t, err)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "Duty Officer", resp.Actions[0].Who)
}

func TestDecodeNodeResponseEmpty(t *testing.T) {
	_, err := decodeNodeResponse("sec-1", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestDecodeNodeResponseMalformed(t *testing.T) {
	_, err := decodeNodeResponse("sec-1", `{"actions": [`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed response")
}

func TestDecodeNodeResponseNoActions(t *testing.T) {
	resp, err := decodeNodeResponse("sec-1", `{"actions": [], "tables": []}`)
	require.NoError(t, err)
	assert.Empty(t, resp.Actions)
}

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"whitespace", "  {\"a\":1}\n", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", "Sure:\n{\"a\":1}\nDone.", `{"a":1}`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanJSON(tc.in))
		})
	}
}

func TestBuildUserPrompt(t *testing.T) {
	req := NodeRequest{
		NodeID: "sec-3",
		Title:  "Surge Capacity",
		Text:   "The Logistics Officer must order beds.",
		Tables: []model.TableBlock{
			{Header: []string{"Item", "Qty"}, Rows: [][]string{{"Beds", "40"}}},
		},
		Formulas: []string{"beds = patients * 1.2"},
	}

	prompt := buildUserPrompt(req)
	assert.Contains(t, prompt, "Section ID: sec-3")
	assert.Contains(t, prompt, "Surge Capacity")
	assert.Contains(t, prompt, "Item | Qty")
	assert.Contains(t, prompt, "Beds | 40")
	assert.Contains(t, prompt, "beds = patients * 1.2")
}

func TestBuildUserPromptMinimal(t *testing.T) {
	prompt := buildUserPrompt(NodeRequest{NodeID: "sec-1", Title: "Intro", Text: "No duties here."})
	assert.NotContains(t, prompt, "Section tables")
	assert.NotContains(t, prompt, "Section formulas")
}
