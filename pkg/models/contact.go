package models

import "time"

// ContactState represents where a contact is in its journey.
type ContactState string

const (
	ContactStateActive         ContactState = "active"          // Eligible for advancing
	ContactStateWaiting        ContactState = "waiting"         // Suspended, awaiting an inbound reply
	ContactStateWaitingInbound ContactState = "waiting-inbound" // Reply buffered, resumption pending
	ContactStateDone           ContactState = "done"            // Terminal
	ContactStateFailed         ContactState = "failed"          // Terminal, contact-local error
)

// Terminal reports whether the contact can make no further transitions.
func (s ContactState) Terminal() bool {
	return s == ContactStateDone || s == ContactStateFailed
}

// HistoryType classifies a contact history entry.
type HistoryType string

const (
	HistoryVisit    HistoryType = "visit"
	HistoryOutbound HistoryType = "outbound"
	HistoryInbound  HistoryType = "inbound"
	HistoryAPICall  HistoryType = "api"
	HistoryError    HistoryType = "error"
)

// HistoryEntry records one immutable fact about a past transition. History is
// append-only; entries are never mutated in place.
type HistoryEntry struct {
	TS       time.Time   `json:"ts"`
	Type     HistoryType `json:"type"`
	NodeID   string      `json:"node_id,omitempty"`
	NodeType NodeType    `json:"node_type,omitempty"`
	Channel  string      `json:"channel,omitempty"`
	Body     string      `json:"body,omitempty"`
	Text     string      `json:"text,omitempty"`
	Payload  string      `json:"payload,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// WaitState is the snapshot taken when a contact suspends on a wait/branch
// node. Conditions are copied from the journey at suspension time so a later
// edit to the journey cannot change how the contact resumes.
type WaitState struct {
	NodeID     string      `json:"node_id"`
	Conditions []Condition `json:"conditions"`
	Until      *time.Time  `json:"until,omitempty"`
}

// Inbound is a buffered reply awaiting resumption.
type Inbound struct {
	At      time.Time `json:"at"`
	Text    string    `json:"text"`
	Payload string    `json:"payload,omitempty"`
}

// Contact is one audience member's run-scoped execution state. Contacts are
// mutated only by the state machine (on tick) or by the inbound dispatcher
// (buffering a reply); they are never deleted, only reach a terminal state.
type Contact struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	Phone       string         `json:"phone" validate:"required"`
	Vars        map[string]any `json:"vars,omitempty"`
	Cursor      string         `json:"cursor,omitempty"`
	State       ContactState   `json:"state"`
	DueAt       *time.Time     `json:"due_at,omitempty"`
	Wait        *WaitState     `json:"wait,omitempty"`
	LastInbound *Inbound       `json:"last_inbound,omitempty"`
	History     []HistoryEntry `json:"history,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AppendHistory adds an entry stamped with the current time.
func (c *Contact) AppendHistory(entry HistoryEntry) {
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}

	c.History = append(c.History, entry)
}

// Due reports whether the contact's suspension time has elapsed at now.
// Contacts with no due time are always due.
func (c *Contact) Due(now time.Time) bool {
	return c.DueAt == nil || !c.DueAt.After(now)
}
