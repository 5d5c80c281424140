// Package models defines the core domain models for journey-based messaging campaigns.
package models

import "time"

// JourneyStatus represents the lifecycle state of a journey definition.
type JourneyStatus string

const (
	JourneyStatusDraft     JourneyStatus = "draft"     // Editable, not launchable
	JourneyStatusPublished JourneyStatus = "published" // Launchable
	JourneyStatusArchived  JourneyStatus = "archived"  // Historical, not launchable
)

// Journey is a directed graph of nodes a contact walks through during a run.
// Once a run is launched the journey is treated as immutable for that run:
// suspension points snapshot whatever they need from it.
type Journey struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"        validate:"required,min=3"`
	Status    JourneyStatus  `json:"status"      validate:"required"`
	Nodes     []*Node        `json:"nodes"`
	Edges     []*Edge        `json:"edges"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Owner     string         `json:"owner,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Edge connects two nodes. Edges leaving wait/branch nodes carry condition
// data used to match inbound replies; edges leaving any other node type are
// unconditional and only the first one is followed.
type Edge struct {
	ID     string    `json:"id"`
	Source string    `json:"source" validate:"required"`
	Target string    `json:"target" validate:"required"`
	Label  string    `json:"label,omitempty"`
	Data   *EdgeData `json:"data,omitempty"`
}

// EdgeData holds the reply-matching condition attached to a wait/branch edge.
type EdgeData struct {
	ConditionType ConditionType `json:"conditionType,omitempty"`
	Value         string        `json:"value,omitempty"`
	IsFallback    bool          `json:"isFallback,omitempty"`
	IsTimeout     bool          `json:"isTimeout,omitempty"`
}

// Condition is the matcher's view of a wait/branch edge, captured onto the
// contact at suspension time so resumption does not depend on a journey that
// may have been edited meanwhile.
func (e *Edge) Condition() Condition {
	cond := Condition{
		EdgeID: e.ID,
		Target: e.Target,
		Label:  e.Label,
		Type:   ConditionKeywords,
	}

	if e.Data != nil {
		if e.Data.ConditionType != "" {
			cond.Type = e.Data.ConditionType
		}

		cond.Value = e.Data.Value
		cond.IsFallback = e.Data.IsFallback
		cond.IsTimeout = e.Data.IsTimeout
	}

	return cond
}
