package render

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/relief-ops/checklist-cli/internal/model"
)

// Console renders a terminal summary of the checklist: one go-pretty table
// per group plus a metadata footer.
func Console(doc *model.ChecklistDocument) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Checklist: %s\n", doc.Specification.Title)
	if doc.Specification.Trigger != "" {
		fmt.Fprintf(&b, "Trigger: %s\n", doc.Specification.Trigger)
	}
	b.WriteString("\n")

	for _, g := range doc.Groups {
		fmt.Fprintf(&b, "[%s / %s]\n", g.Level, g.Trigger)

		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Action", "Responsible", "When", "Status"})
		for _, r := range g.Rows {
			tw.AppendRow(table.Row{truncate(r.Action, 70), r.Role, r.When, r.Status})
		}
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, WidthMax: 72, Align: text.AlignLeft},
			{Number: 2, WidthMax: 28},
		})
		b.WriteString(tw.Render())
		b.WriteString("\n\n")
	}

	m := doc.Metadata
	fmt.Fprintf(&b, "nodes=%d failed=%d actions=%d flagged=%d merged=%d unresolved_roles=%d\n",
		m.NodesTotal, m.NodesFailed, m.ActionsExtracted, m.FlaggedCount, m.MergedCount, m.UnresolvedRoles)
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
