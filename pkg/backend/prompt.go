package backend

import (
	"fmt"
	"strings"

	"github.com/relief-ops/checklist-cli/internal/model"
)

// systemPrompt is the shared instruction for node extraction.
const systemPrompt = `You are an analyst converting emergency-preparedness and policy documents into operational checklists. You extract atomic actions from one document section at a time.

An action is a single directive with three parts: WHO is responsible (an organizational role or body, never a named individual), WHAT must be done, and WHEN it must be done (a deadline, a date, or a triggering event).

Rules:
- Extract ONLY actions stated in the provided section; never invent or infer obligations
- Return valid JSON for every response
- Copy who/what/when wording from the source as closely as possible
- Leave a field as an empty string if the section genuinely does not state it
- If the section lists a formula, set formula_ref on the action whose text the formula belongs to, copying the formula string exactly as given
- level is "local", "regional", or "national" when the section states the tier, otherwise ""
- span start/end are character offsets of the supporting text inside the section`

// userPromptTemplate lays out one node for extraction.
const userPromptTemplate = `Section ID: %s
Section title: %s

Section text:
%s
%s%s
Return a JSON object:
{"actions": [{"who": "<role>", "what": "<directive>", "when": "<timing>", "context": "<surrounding clause>", "level": "<local|regional|national|>", "formula_ref": "<exact formula string or omit>", "span": {"start": <int>, "end": <int>}}], "tables": [{"header": ["<col>"], "rows": [["<cell>"]]}]}`

// buildUserPrompt renders the extraction prompt for one node.
func buildUserPrompt(req NodeRequest) string {
	var tables string
	if len(req.Tables) > 0 {
		var b strings.Builder
		b.WriteString("\nSection tables:\n")
		for i, t := range req.Tables {
			fmt.Fprintf(&b, "Table %d: %s\n", i+1, strings.Join(t.Header, " | "))
			for _, row := range t.Rows {
				fmt.Fprintf(&b, "  %s\n", strings.Join(row, " | "))
			}
		}
		tables = b.String()
	}

	var formulas string
	if len(req.Formulas) > 0 {
		var b strings.Builder
		b.WriteString("\nSection formulas (copy exactly into formula_ref when claimed by an action):\n")
		for _, f := range req.Formulas {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		formulas = b.String()
	}

	return fmt.Sprintf(userPromptTemplate, req.NodeID, req.Title, req.Text, tables, formulas)
}

// tableHeaderKey joins a header row for logging/debugging.
func tableHeaderKey(t model.TableBlock) string {
	return strings.Join(t.Header, "|")
}
