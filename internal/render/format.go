// Package render builds the final checklist artifact from the canonical,
// normalized action set and serializes it for humans and machines.
package render

import (
	"sort"

	"github.com/relief-ops/checklist-cli/internal/doctree"
	"github.com/relief-ops/checklist-cli/internal/model"
)

// groupKey orders checklist groups: operational level first (national
// before regional before local before unspecified), then trigger kind
// (deadlines before dates before events).
type groupKey struct {
	level   model.OperationalLevel
	trigger model.TriggerKind
}

var triggerOrder = map[model.TriggerKind]int{
	model.TriggerRelativeDeadline: 0,
	model.TriggerAbsoluteTime:     1,
	model.TriggerEvent:            2,
}

// Format renders the three-part checklist structure from the included
// actions, pass-through tables, and run metadata. No information is lost
// between a canonical action and its rendered row: when a formula was
// integrated, its equation is already part of the action text, and the
// formula id surfaces in the remarks.
func Format(doc *doctree.Document, included []model.Action, tables []model.Table, meta model.Metadata) *model.ChecklistDocument {
	out := &model.ChecklistDocument{
		Specification: model.SpecificationBlock{
			Title:     doc.Title,
			Scope:     doc.Scope,
			Trigger:   doc.Trigger,
			Objective: doc.Objective,
		},
		Tables:   tables,
		Metadata: meta,
	}

	grouped := make(map[groupKey][]model.ChecklistRow)
	for _, a := range included {
		key := groupKey{level: a.Level, trigger: triggerKind(a)}
		grouped[key] = append(grouped[key], row(a))
	}

	keys := make([]groupKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].level != keys[j].level {
			return keys[i].level > keys[j].level // national first
		}
		return triggerOrder[keys[i].trigger] < triggerOrder[keys[j].trigger]
	})

	for _, k := range keys {
		out.Groups = append(out.Groups, model.ChecklistGroup{
			Level:   k.level,
			Trigger: k.trigger,
			Rows:    grouped[k],
		})
	}

	out.Confirmation = confirmation(included)
	return out
}

func triggerKind(a model.Action) model.TriggerKind {
	if a.Timing != nil {
		return a.Timing.Kind
	}
	return model.TriggerEvent
}

func row(a model.Action) model.ChecklistRow {
	r := model.ChecklistRow{
		ActionID: a.ID,
		Action:   a.What,
		Status:   model.StatusPending,
		When:     a.When,
		Role:     roleLabel(a),
	}
	if a.Formula != nil {
		r.Remarks = "formula " + a.Formula.FormulaID + " from " + a.Formula.Reference.NodeID
	}
	return r
}

// roleLabel renders the canonical role, or an explicit needs-assignment
// marker when resolution failed. Named individuals never appear here.
func roleLabel(a model.Action) string {
	if a.Role == nil {
		return a.Who
	}
	if a.Role.Unresolved {
		return "NEEDS ASSIGNMENT (" + a.Who + ")"
	}
	return a.Role.RoleTitle
}

// confirmation picks the sign-off role: the highest-tier resolved role in
// the included set.
func confirmation(included []model.Action) model.ExecutionConfirmation {
	var best *model.Action
	for i := range included {
		a := &included[i]
		if a.Role == nil || a.Role.Unresolved {
			continue
		}
		if best == nil || a.Level > best.Level {
			best = a
		}
	}
	if best == nil {
		return model.ExecutionConfirmation{RoleTitle: "NEEDS ASSIGNMENT"}
	}
	return model.ExecutionConfirmation{
		RoleID:    best.Role.RoleID,
		RoleTitle: best.Role.RoleTitle,
	}
}
