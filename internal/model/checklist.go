package model

// ChecklistStatus enumerates the execution states a checklist row can be in.
// Rendered checklists start every row at pending.
type ChecklistStatus string

const (
	StatusPending       ChecklistStatus = "pending"
	StatusCommunicated  ChecklistStatus = "communicated"
	StatusExecuted      ChecklistStatus = "executed"
	StatusReported      ChecklistStatus = "reported"
	StatusNotApplicable ChecklistStatus = "not-applicable"
)

// SpecificationBlock carries the document-level scope of the checklist.
type SpecificationBlock struct {
	Title     string `json:"title"`
	Scope     string `json:"scope"`
	Trigger   string `json:"trigger"`
	Objective string `json:"objective"`
}

// ChecklistRow is one action rendered into the content table.
type ChecklistRow struct {
	ActionID string          `json:"action_id"`
	Action   string          `json:"action"`
	Status   ChecklistStatus `json:"status"`
	Remarks  string          `json:"remarks,omitempty"`
	Role     string          `json:"role"`
	When     string          `json:"when"`
}

// ChecklistGroup collects rows sharing an operational level and trigger
// kind, in the order the formatter groups them.
type ChecklistGroup struct {
	Level   OperationalLevel `json:"level"`
	Trigger TriggerKind      `json:"trigger"`
	Rows    []ChecklistRow   `json:"rows"`
}

// ExecutionConfirmation is the sign-off stub at the end of a checklist. It
// references a canonical role, never a named individual.
type ExecutionConfirmation struct {
	RoleID    string `json:"role_id,omitempty"`
	RoleTitle string `json:"role_title"`
	SignedOff bool   `json:"signed_off"`
}

// ChecklistDocument is the final rendered artifact: specification block,
// grouped content table, attached tables, and the execution confirmation.
type ChecklistDocument struct {
	Specification SpecificationBlock    `json:"specification"`
	Groups        []ChecklistGroup      `json:"groups"`
	Tables        []Table               `json:"tables,omitempty"`
	Confirmation  ExecutionConfirmation `json:"confirmation"`
	Metadata      Metadata              `json:"metadata"`
}
