package models

import "encoding/json"

// NodeType represents the kind of node in a journey graph.
type NodeType string

const (
	NodeTypeStart    NodeType = "start"    // Entry marker, pass-through
	NodeTypeAudience NodeType = "audience" // Audience seed, pass-through after launch
	NodeTypeMessage  NodeType = "message"  // Render + enqueue an outbound message
	NodeTypeAPI      NodeType = "api"      // HTTP call with response-to-vars mapping
	NodeTypeCode     NodeType = "code"     // Reserved, pass-through
	NodeTypeDelay    NodeType = "delay"    // Suspend until a due time
	NodeTypeWait     NodeType = "wait"     // Suspend until an inbound reply
	NodeTypeBranch   NodeType = "branch"   // Evaluate an already-held reply, else wait
	NodeTypeEnd      NodeType = "end"      // Terminal
)

// Node is a single step in a journey. Data is the loosely-typed blob the
// builder UI produces; the typed accessors below decode the fields relevant
// to each node type.
type Node struct {
	ID   string         `json:"id"   validate:"required"`
	Type NodeType       `json:"type" validate:"required"`
	Name string         `json:"name,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Suspending reports whether this node type parks the contact waiting for an
// inbound reply.
func (n *Node) Suspending() bool {
	return n.Type == NodeTypeWait || n.Type == NodeTypeBranch
}

// MessageData carries a message node's configuration.
type MessageData struct {
	Text    string `json:"text"`
	Channel string `json:"channel"`
}

// DelayData carries a delay node's configuration. Exactly one of Seconds,
// Duration (ISO-8601 subset) or Until is expected; Until wins when Mode is
// "until", matching the builder's output.
type DelayData struct {
	Mode     string  `json:"mode"`
	Seconds  float64 `json:"seconds"`
	Duration string  `json:"duration"`
	Until    string  `json:"until"`
}

// WaitData carries a wait node's configuration. Timeout is an ISO-8601
// duration after which the timeout edge (or fallback) is taken.
type WaitData struct {
	Timeout string `json:"timeout"`
}

// APIData carries an api node's configuration.
type APIData struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Body            string            `json:"body"`
	Headers         map[string]string `json:"headers"`
	Mappings        []VarMapping      `json:"mappings"`
	ContinueOnError bool              `json:"continue_on_error"`
}

// VarMapping maps a dotted path in an api response body onto a contact var.
type VarMapping struct {
	Var  string `json:"var"`
	Path string `json:"path"`
}

// AudienceData carries the audience node's launch-time configuration: the
// column holding the phone number, the raw audience rows, and the
// column-to-variable mapping used to seed each contact's vars.
type AudienceData struct {
	PhoneKey string            `json:"phoneKey"`
	Rows     []map[string]any  `json:"rows"`
	Mapping  map[string]string `json:"mapping"`
}

func (n *Node) MessageData() (MessageData, error) {
	var data MessageData

	return data, decodeNodeData(n.Data, &data)
}

func (n *Node) DelayData() (DelayData, error) {
	var data DelayData

	return data, decodeNodeData(n.Data, &data)
}

func (n *Node) WaitData() (WaitData, error) {
	var data WaitData

	return data, decodeNodeData(n.Data, &data)
}

func (n *Node) APIData() (APIData, error) {
	var data APIData

	return data, decodeNodeData(n.Data, &data)
}

func (n *Node) AudienceData() (AudienceData, error) {
	var data AudienceData

	return data, decodeNodeData(n.Data, &data)
}

// decodeNodeData converts the generic data blob into a typed struct through a
// JSON round-trip, tolerating absent fields.
func decodeNodeData(data map[string]any, out any) error {
	if data == nil {
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, out)
}
