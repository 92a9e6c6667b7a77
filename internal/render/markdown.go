package render

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/relief-ops/checklist-cli/internal/model"
)

// Markdown serializes a checklist document to the standardized markdown
// artifact: specification block, grouped content table, attached source
// tables, and the execution confirmation stub.
func Markdown(doc *model.ChecklistDocument) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Checklist: %s\n\n", doc.Specification.Title)

	b.WriteString("## Specification\n")
	fmt.Fprintf(&b, "- Scope: %s\n", orDash(doc.Specification.Scope))
	fmt.Fprintf(&b, "- Trigger: %s\n", orDash(doc.Specification.Trigger))
	fmt.Fprintf(&b, "- Objective: %s\n\n", orDash(doc.Specification.Objective))

	b.WriteString("## Actions\n")
	if len(doc.Groups) == 0 {
		b.WriteString("No actions selected.\n\n")
	}
	for _, g := range doc.Groups {
		fmt.Fprintf(&b, "### %s / %s\n", titleCase(g.Level.String()), g.Trigger)
		b.WriteString("| Action | Responsible | When | Status | Remarks |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, r := range g.Rows {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				escapeCell(r.Action), escapeCell(r.Role), escapeCell(r.When), r.Status, escapeCell(r.Remarks))
		}
		b.WriteString("\n")
	}

	if len(doc.Tables) > 0 {
		b.WriteString("## Reference Tables\n")
		for _, t := range doc.Tables {
			fmt.Fprintf(&b, "### %s (from %s)\n", t.ID, t.Reference.NodeID)
			b.WriteString("| " + strings.Join(t.Header, " | ") + " |\n")
			b.WriteString("|" + strings.Repeat("---|", len(t.Header)) + "\n")
			for _, row := range t.Rows {
				b.WriteString("| " + strings.Join(row, " | ") + " |\n")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Execution Confirmation\n")
	fmt.Fprintf(&b, "Confirmed complete by: %s\n", doc.Confirmation.RoleTitle)
	b.WriteString("Signature: ____________________  Date: ____________\n\n")

	b.WriteString("## Metadata\n")
	m := doc.Metadata
	fmt.Fprintf(&b, "- Nodes processed: %d (%d failed)\n", m.NodesTotal, m.NodesFailed)
	fmt.Fprintf(&b, "- Actions extracted: %d (%d with formulas, %d flagged, %d merged)\n",
		m.ActionsExtracted, m.ActionsWithFormulas, m.FlaggedCount, m.MergedCount)
	fmt.Fprintf(&b, "- Unresolved roles: %d\n", m.UnresolvedRoles)
	for _, w := range m.Warnings {
		fmt.Fprintf(&b, "- Warning [%s]: %s\n", w.Kind, w.Detail)
	}

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var titler = cases.Title(language.English)

func titleCase(s string) string {
	return titler.String(s)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
