package model

// SourceRef points at a span of text inside a document node. Actions keep
// one ref per originating subject, so a merged action stays traceable to
// every section it was extracted from.
type SourceRef struct {
	NodeID string `json:"node_id"`
	Start  int    `json:"start,omitempty"`
	End    int    `json:"end,omitempty"`
}

// TableBlock is a raw table as it appears in the source document, before
// extraction assigns it an identity.
type TableBlock struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// DocumentNode is one subject (section) of the ingested document tree.
// Nodes are created once at ingestion and never mutated afterwards; the
// parent reference is lookup-only and carries no ownership.
type DocumentNode struct {
	ID       string          `json:"id"`
	ParentID string          `json:"-"`
	Title    string          `json:"title"`
	Text     string          `json:"text"`
	Tables   []TableBlock    `json:"tables,omitempty"`
	Formulas []string        `json:"formulas,omitempty"`
	Children []*DocumentNode `json:"children,omitempty"`
}
