package resilience

import "time"

// QuarantinedNode records a document node whose backend extraction
// exhausted its retry budget. The run continues without the node; the entry
// lets a later retry-quarantine pass re-drive just the failed nodes.
type QuarantinedNode struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	NodeID       string    `json:"node_id"`
	NodeTitle    string    `json:"node_title,omitempty"`
	Error        string    `json:"error"`
	ErrorClass   string    `json:"error_class"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// Eligible reports whether the entry may be retried now.
func (q *QuarantinedNode) Eligible(now time.Time) bool {
	return q.RetryCount < q.MaxRetries && !now.Before(q.NextRetryAt)
}

// QuarantineFilter narrows quarantine queries.
type QuarantineFilter struct {
	RunID      string `json:"run_id,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}
