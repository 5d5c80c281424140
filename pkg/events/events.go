// Package events defines event types and structures for run scheduling and
// message dispatch.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every jornada event; consumers filter by event type metadata.
const Topic = "jornada.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run scheduling events.
	RunTickRequestedEvent EventType = "run.tick.requested"
	RunFinishedEvent      EventType = "run.finished"
	RunFailedEvent        EventType = "run.failed"

	// Outbound dispatch events.
	MessageSendEvent EventType = "message.send"

	// Inbound telemetry events.
	InboundReceivedEvent EventType = "inbound.received"
)

// TickReason records what scheduled a tick; useful in logs and traces.
type TickReason string

const (
	TickReasonLaunch   TickReason = "launch"
	TickReasonSchedule TickReason = "schedule"
	TickReasonInbound  TickReason = "inbound"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Metadata:  make(map[string]any),
	}
}

// RunTickRequested asks a worker to run one coordinator tick for a run. The
// tick itself is idempotent, so at-least-once delivery of this event is safe.
type RunTickRequested struct {
	BaseEvent

	Reason TickReason `json:"reason"`
}

func (e RunTickRequested) GetType() EventType {
	return RunTickRequestedEvent
}

// RunFinished reports a run reaching the done status.
type RunFinished struct {
	BaseEvent

	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Duration  time.Duration `json:"duration"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

// RunFailed reports a run-level failure.
type RunFailed struct {
	BaseEvent

	Error string `json:"error"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// MessageSend hands a rendered outbound message to the dispatch queue. The
// state machine fires and forgets; delivery retries belong to the consumer.
type MessageSend struct {
	BaseEvent

	ContactID string `json:"contact_id"`
	Phone     string `json:"phone"`
	Body      string `json:"body"`
	Channel   string `json:"channel"`
	NodeID    string `json:"node_id"`
}

func (e MessageSend) GetType() EventType {
	return MessageSendEvent
}

// InboundReceived records an inbound reply delivered to a waiting contact.
type InboundReceived struct {
	BaseEvent

	ContactID string `json:"contact_id"`
	Phone     string `json:"phone"`
	Text      string `json:"text"`
	Payload   string `json:"payload,omitempty"`
}

func (e InboundReceived) GetType() EventType {
	return InboundReceivedEvent
}
