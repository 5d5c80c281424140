package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJourney_Validation_Valid(t *testing.T) {
	journey := &Journey{
		ID:     "journey-123",
		Name:   "Welcome flow",
		Status: JourneyStatusPublished,
		Nodes: []*Node{
			{ID: "n1", Type: NodeTypeStart},
			{ID: "n2", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{ID: "e1", Source: "n1", Target: "n2"},
		},
	}

	validate := validator.New()
	assert.NoError(t, validate.Struct(journey))
}

func TestJourney_Validation_ShortName(t *testing.T) {
	journey := &Journey{
		ID:     "journey-123",
		Name:   "ab",
		Status: JourneyStatusDraft,
	}

	validate := validator.New()
	assert.Error(t, validate.Struct(journey))
}

func TestEdge_Condition_Defaults(t *testing.T) {
	edge := &Edge{ID: "e1", Source: "wait1", Target: "yes"}

	cond := edge.Condition()

	assert.Equal(t, ConditionKeywords, cond.Type)
	assert.Equal(t, "yes", cond.Target)
	assert.Empty(t, cond.Value)
	assert.False(t, cond.IsFallback)
}

func TestEdge_Condition_CarriesEdgeData(t *testing.T) {
	edge := &Edge{
		ID:     "e2",
		Source: "wait1",
		Target: "opt-out",
		Label:  "stop",
		Data: &EdgeData{
			ConditionType: ConditionPayload,
			Value:         "STOP|CANCEL",
			IsFallback:    true,
		},
	}

	cond := edge.Condition()

	assert.Equal(t, ConditionPayload, cond.Type)
	assert.Equal(t, "STOP|CANCEL", cond.Value)
	assert.Equal(t, "stop", cond.Label)
	assert.True(t, cond.IsFallback)
}

func TestNode_TypedData(t *testing.T) {
	node := &Node{
		ID:   "msg1",
		Type: NodeTypeMessage,
		Data: map[string]any{
			"text":    "Oi {{name}}!",
			"channel": "whatsapp",
		},
	}

	data, err := node.MessageData()
	require.NoError(t, err)
	assert.Equal(t, "Oi {{name}}!", data.Text)
	assert.Equal(t, "whatsapp", data.Channel)
}

func TestNode_TypedData_NilBlob(t *testing.T) {
	node := &Node{ID: "d1", Type: NodeTypeDelay}

	data, err := node.DelayData()
	require.NoError(t, err)
	assert.Zero(t, data.Seconds)
	assert.Empty(t, data.Until)
}

func TestNode_Suspending(t *testing.T) {
	assert.True(t, (&Node{Type: NodeTypeWait}).Suspending())
	assert.True(t, (&Node{Type: NodeTypeBranch}).Suspending())
	assert.False(t, (&Node{Type: NodeTypeMessage}).Suspending())
	assert.False(t, (&Node{Type: NodeTypeEnd}).Suspending())
}

func TestValidateNodeData_Message(t *testing.T) {
	valid := &Node{ID: "m1", Type: NodeTypeMessage, Data: map[string]any{"text": "hello"}}
	assert.NoError(t, ValidateNodeData(valid))

	missingText := &Node{ID: "m2", Type: NodeTypeMessage, Data: map[string]any{"channel": "sms"}}
	assert.Error(t, ValidateNodeData(missingText))

	badChannel := &Node{ID: "m3", Type: NodeTypeMessage, Data: map[string]any{"text": "x", "channel": "fax"}}
	assert.Error(t, ValidateNodeData(badChannel))
}

func TestValidateNodeData_API(t *testing.T) {
	valid := &Node{ID: "a1", Type: NodeTypeAPI, Data: map[string]any{
		"url":      "https://example.com/enrich",
		"mappings": []any{map[string]any{"var": "score", "path": "data.score"}},
	}}
	assert.NoError(t, ValidateNodeData(valid))

	missingURL := &Node{ID: "a2", Type: NodeTypeAPI, Data: map[string]any{"method": "GET"}}
	assert.Error(t, ValidateNodeData(missingURL))
}

func TestValidateNodeData_UnschemaedTypePasses(t *testing.T) {
	node := &Node{ID: "e1", Type: NodeTypeEnd}
	assert.NoError(t, ValidateNodeData(node))
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusQueued.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusDone.Terminal())
	assert.True(t, RunStatusStopped.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
}

func TestContactState_Terminal(t *testing.T) {
	assert.False(t, ContactStateActive.Terminal())
	assert.False(t, ContactStateWaiting.Terminal())
	assert.False(t, ContactStateWaitingInbound.Terminal())
	assert.True(t, ContactStateDone.Terminal())
	assert.True(t, ContactStateFailed.Terminal())
}

func TestContact_AppendHistory_Stamps(t *testing.T) {
	contact := &Contact{ID: "c1"}

	contact.AppendHistory(HistoryEntry{Type: HistoryVisit, NodeID: "n1"})

	require.Len(t, contact.History, 1)
	assert.False(t, contact.History[0].TS.IsZero())
}

func TestContact_Due(t *testing.T) {
	now := time.Now()

	noDueTime := &Contact{}
	assert.True(t, noDueTime.Due(now))

	past := now.Add(-time.Second)
	assert.True(t, (&Contact{DueAt: &past}).Due(now))

	future := now.Add(time.Minute)
	assert.False(t, (&Contact{DueAt: &future}).Due(now))
}
