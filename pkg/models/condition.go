package models

// ConditionType selects how a wait/branch edge matches an inbound reply.
type ConditionType string

const (
	ConditionPayload  ConditionType = "payload"  // Exact match against a button payload
	ConditionRegex    ConditionType = "regex"    // Pattern match against the reply text
	ConditionKeywords ConditionType = "keywords" // Case-insensitive substring match
)

// Condition is one matchable branch option. Conditions are snapshotted onto a
// contact when it suspends, so they carry everything resumption needs.
type Condition struct {
	EdgeID     string        `json:"edge_id"`
	Target     string        `json:"target"`
	Label      string        `json:"label,omitempty"`
	Type       ConditionType `json:"type"`
	Value      string        `json:"value,omitempty"`
	IsFallback bool          `json:"is_fallback,omitempty"`
	IsTimeout  bool          `json:"is_timeout,omitempty"`
}
