// Package dispatch moves rendered outbound messages from the state machine to
// a delivery channel. Messages go through a Redis list so delivery survives a
// worker restart and can be retried independently of journey execution.
package dispatch

import (
	"context"
	"encoding/json"
	"time"
)

// Message is the queued form of one outbound send.
type Message struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	ContactID  string    `json:"contact_id"`
	Phone      string    `json:"phone"`
	Body       string    `json:"body"`
	Channel    string    `json:"channel"`
	NodeID     string    `json:"node_id"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func UnmarshalMessage(raw []byte) (*Message, error) {
	var message Message

	if err := json.Unmarshal(raw, &message); err != nil {
		return nil, err
	}

	return &message, nil
}

// Queue is the transport between the dispatcher and the consumer.
type Queue interface {
	Enqueue(ctx context.Context, message *Message) error
	Close() error
}

// Messenger delivers one message over a concrete channel (whatsapp, sms).
type Messenger interface {
	Send(ctx context.Context, message *Message) error
}
