package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// OperationalLevel is the organizational tier an action applies to. It is
// used for grouping in the rendered checklist and for selector filtering.
type OperationalLevel int

const (
	// LevelUnspecified means the source text gave no tier; unspecified
	// actions are never filtered out by a minimum-level policy.
	LevelUnspecified OperationalLevel = iota
	LevelLocal
	LevelRegional
	LevelNational
)

func (l OperationalLevel) String() string {
	switch l {
	case LevelLocal:
		return "local"
	case LevelRegional:
		return "regional"
	case LevelNational:
		return "national"
	default:
		return "unspecified"
	}
}

// ParseOperationalLevel maps free-text tier descriptions onto the enum.
// Unrecognized text maps to LevelUnspecified.
func ParseOperationalLevel(s string) OperationalLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "municipal", "facility", "site", "hospital":
		return LevelLocal
	case "regional", "district", "provincial":
		return LevelRegional
	case "national", "federal", "ministry", "state":
		return LevelNational
	default:
		return LevelUnspecified
	}
}

// RawAction is the extraction backend's per-node output before validation.
// It is ephemeral: validation either promotes it to an Action or demotes it
// to a FlaggedAction.
type RawAction struct {
	Who        string    `json:"who"`
	What       string    `json:"what"`
	When       string    `json:"when"`
	Context    string    `json:"context,omitempty"`
	Level      string    `json:"level,omitempty"`
	Reference  SourceRef `json:"reference"`
	FormulaRef string    `json:"formula_ref,omitempty"`
}

// Formula is a raw equation found in a node. Once integrated into an action
// it is owned by exactly that action; integration is a consuming transfer,
// never a copy.
type Formula struct {
	ID        string    `json:"id"`
	Equation  string    `json:"equation"`
	Reference SourceRef `json:"reference"`
}

// FormulaRef records the formula an action's description was built from.
// Invariant: the equation text appears verbatim inside the owning action's
// What field.
type FormulaRef struct {
	FormulaID string    `json:"formula_id"`
	Equation  string    `json:"equation"`
	Reference SourceRef `json:"reference"`
}

// TriggerKind classifies a normalized when field.
type TriggerKind string

const (
	TriggerAbsoluteTime     TriggerKind = "absolute_time"
	TriggerRelativeDeadline TriggerKind = "relative_deadline"
	TriggerEvent            TriggerKind = "event_trigger"
)

// Timing is the normalized trigger/deadline representation of a when field.
// The original free text stays untouched on the action for audit purposes.
type Timing struct {
	Kind  TriggerKind `json:"kind"`
	Value string      `json:"value"`
}

// RoleAssignment binds an action's who text to a canonical organizational
// role. Unresolved is true when no confident taxonomy match existed; the
// checklist renders those as an explicit needs-assignment marker.
type RoleAssignment struct {
	RoleID     string `json:"role_id,omitempty"`
	RoleTitle  string `json:"role_title,omitempty"`
	Unresolved bool   `json:"unresolved,omitempty"`
}

// Action is a canonical, schema-valid who/what/when directive. Actions are
// never mutated after creation; dedup merges and stage annotations always
// produce a new value.
type Action struct {
	ID         string           `json:"id"`
	Who        string           `json:"who"`
	What       string           `json:"what"`
	When       string           `json:"when"`
	Context    string           `json:"context,omitempty"`
	Level      OperationalLevel `json:"level"`
	References []SourceRef      `json:"references"`
	Formula    *FormulaRef      `json:"original_formula_reference,omitempty"`
	Timing     *Timing          `json:"timing,omitempty"`
	Role       *RoleAssignment  `json:"role,omitempty"`

	// TraversalOrder and ExtractionOrder pin the action's position in the
	// deterministic merge ordering: node pre-order index first, then the
	// backend's emission order within the node.
	TraversalOrder  int `json:"traversal_order"`
	ExtractionOrder int `json:"extraction_order"`
}

// FlaggedAction is an action-shaped record that failed schema validation.
// It is never silently dropped; the metadata report always carries it for
// human triage.
type FlaggedAction struct {
	Action
	MissingFields []string `json:"missing_fields"`
}

// ActionID derives a stable, content-based identifier from the who/what/when
// triple. Identical inputs yield identical ids across reruns, which is what
// makes pipeline replays byte-comparable.
func ActionID(who, what, when string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(who)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(what)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(when)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Table is a table that survived extraction. Dedup and selection pass
// tables through unchanged; the formatter attaches them to their section.
type Table struct {
	ID        string     `json:"id"`
	Header    []string   `json:"header"`
	Rows      [][]string `json:"rows"`
	Reference SourceRef  `json:"reference"`
}
