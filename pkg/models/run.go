package models

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"  // Created, first tick pending
	RunStatusRunning RunStatus = "running" // Contacts being processed
	RunStatusDone    RunStatus = "done"    // All contacts terminal
	RunStatusStopped RunStatus = "stopped" // Operator stop, no further work starts
	RunStatusFailed  RunStatus = "failed"  // Run-level error
)

// Terminal reports whether no further work may happen for this run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusStopped || s == RunStatusFailed
}

// Run is one launch of a journey against an audience. Processed is always
// recomputed from the contacts' terminal states, never incremented.
type Run struct {
	ID          string     `json:"id"`
	JourneyID   string     `json:"journey_id"   validate:"required"`
	JourneyName string     `json:"journey_name,omitempty"`
	Channel     string     `json:"channel,omitempty"`
	Status      RunStatus  `json:"status"       validate:"required"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// RunStats summarises per-state contact counts for a run.
type RunStats struct {
	Total          int `json:"total"`
	Processed      int `json:"processed"`
	Active         int `json:"active"`
	Waiting        int `json:"waiting"`
	WaitingInbound int `json:"waiting_inbound"`
	Done           int `json:"done"`
	Failed         int `json:"failed"`
	Progress       int `json:"progress"`
}
