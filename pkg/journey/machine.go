package journey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jornada-io/jornada/pkg/duration"
	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/template"
)

// maxAdvanceIterations bounds one Advance call so a cyclic graph with no
// reachable end node cannot spin forever.
const maxAdvanceIterations = 100

// DispatchRequest is the hand-off for one rendered outbound message.
type DispatchRequest struct {
	RunID     string
	ContactID string
	Phone     string
	Body      string
	Channel   string
	NodeID    string
}

// Dispatcher enqueues outbound messages for at-least-once delivery. The state
// machine fires and forgets; delivery outcomes never feed back into control
// flow.
type Dispatcher interface {
	EnqueueSend(ctx context.Context, req DispatchRequest) error
}

// APIRequest describes one api-node call after template rendering.
type APIRequest struct {
	URL      string
	Method   string
	Body     string
	Headers  map[string]string
	Mappings []models.VarMapping
}

// APICaller performs an api node's HTTP call and returns the variables mapped
// out of the response body.
type APICaller interface {
	Call(ctx context.Context, req APIRequest) (map[string]any, error)
}

// Machine advances a single contact through a journey graph. It mutates the
// contact it is given and never touches storage; the coordinator owns
// persistence and its conditional-update discipline.
type Machine struct {
	dispatcher Dispatcher
	api        APICaller
	logger     *slog.Logger
	now        func() time.Time
}

func NewMachine(dispatcher Dispatcher, api APICaller, logger *slog.Logger) *Machine {
	return &Machine{
		dispatcher: dispatcher,
		api:        api,
		logger:     logger.With("module", "journey_machine"),
		now:        time.Now,
	}
}

// Advance walks the contact from its cursor until it suspends (delay due
// time, wait for reply) or reaches a terminal state. Terminal contacts and
// contacts waiting on a reply are left untouched.
func (m *Machine) Advance(ctx context.Context, g *Graph, run *models.Run, contact *models.Contact) {
	if contact.State.Terminal() || contact.State == models.ContactStateWaiting || contact.State == models.ContactStateWaitingInbound {
		return
	}

	if contact.Cursor == "" {
		entry := g.EntryNode()
		if entry == nil {
			m.failContact(contact, "", "journey has no entry node")

			return
		}

		contact.Cursor = entry.ID
		contact.State = models.ContactStateActive
	}

	contact.DueAt = nil

	for iteration := 0; contact.State == models.ContactStateActive && contact.Cursor != ""; iteration++ {
		if iteration >= maxAdvanceIterations {
			m.logger.ErrorContext(ctx, "Advance iteration cap reached, forcing contact done",
				"run_id", run.ID, "contact_id", contact.ID, "cursor", contact.Cursor)
			contact.AppendHistory(models.HistoryEntry{
				Type:    models.HistoryError,
				Message: fmt.Sprintf("iteration cap (%d) reached at node %s", maxAdvanceIterations, contact.Cursor),
			})
			m.finishContact(contact)

			return
		}

		node, ok := g.NodeByID(contact.Cursor)
		if !ok {
			m.finishContact(contact)

			return
		}

		contact.AppendHistory(models.HistoryEntry{
			Type:     models.HistoryVisit,
			NodeID:   node.ID,
			NodeType: node.Type,
		})

		switch node.Type {
		case models.NodeTypeStart, models.NodeTypeAudience, models.NodeTypeCode:
			// Pass-through.

		case models.NodeTypeMessage:
			if !m.stepMessage(ctx, run, contact, node) {
				return
			}

		case models.NodeTypeAPI:
			if !m.stepAPI(ctx, run, contact, node) {
				return
			}

		case models.NodeTypeDelay:
			suspended, failed := m.stepDelay(contact, node, g)
			if suspended || failed {
				return
			}

			// Due time already elapsed; the delay is a pass-through.

		case models.NodeTypeWait, models.NodeTypeBranch:
			m.stepWait(ctx, g, run, contact, node)

			return

		case models.NodeTypeEnd:
			m.finishContact(contact)

			return

		default:
			m.failContact(contact, node.ID, fmt.Sprintf("unknown node type: %s", node.Type))

			return
		}

		next := g.FirstEdgeFrom(node.ID)
		if next == nil {
			m.finishContact(contact)

			return
		}

		contact.Cursor = next.Target
	}
}

// Resume applies a buffered inbound reply to a suspended contact. It is a
// no-op unless the contact is in waiting-inbound with its wait snapshot still
// present, which makes a second resumption attempt for the same reply safe.
func (m *Machine) Resume(ctx context.Context, g *Graph, run *models.Run, contact *models.Contact) {
	if contact.State != models.ContactStateWaitingInbound {
		return
	}

	if contact.Wait == nil {
		m.logger.WarnContext(ctx, "Contact in waiting-inbound without wait snapshot, terminating",
			"run_id", run.ID, "contact_id", contact.ID)
		m.finishContact(contact)

		return
	}

	var text, payload string
	if contact.LastInbound != nil {
		text = contact.LastInbound.Text
		payload = contact.LastInbound.Payload
	}

	chosen, ok := Match(contact.Wait.Conditions, text, payload)
	if !ok {
		m.logger.InfoContext(ctx, "Inbound reply matched no condition, terminating contact",
			"run_id", run.ID, "contact_id", contact.ID, "text", text)
		m.finishContact(contact)

		return
	}

	m.logger.InfoContext(ctx, "Inbound reply matched condition",
		"run_id", run.ID, "contact_id", contact.ID, "edge_label", chosen.Label, "target", chosen.Target)

	contact.Cursor = chosen.Target
	contact.Wait = nil
	contact.LastInbound = nil
	contact.State = models.ContactStateActive

	m.Advance(ctx, g, run, contact)
}

// ExpireWait routes a waiting contact whose reply deadline has passed onto
// its timeout edge (or fallback). Contacts without an expired deadline are
// left untouched.
func (m *Machine) ExpireWait(ctx context.Context, g *Graph, run *models.Run, contact *models.Contact) {
	if contact.State != models.ContactStateWaiting || contact.Wait == nil {
		return
	}

	if contact.Wait.Until == nil || m.now().Before(*contact.Wait.Until) {
		return
	}

	chosen, ok := TimeoutCondition(contact.Wait.Conditions)
	if !ok {
		m.logger.InfoContext(ctx, "Wait deadline expired with no timeout edge, terminating contact",
			"run_id", run.ID, "contact_id", contact.ID, "node_id", contact.Wait.NodeID)
		m.finishContact(contact)

		return
	}

	m.logger.InfoContext(ctx, "Wait deadline expired, taking timeout edge",
		"run_id", run.ID, "contact_id", contact.ID, "target", chosen.Target)

	contact.Cursor = chosen.Target
	contact.Wait = nil
	contact.LastInbound = nil
	contact.State = models.ContactStateActive

	m.Advance(ctx, g, run, contact)
}

// stepMessage renders and enqueues a message node's body. Returns false when
// the contact was failed and the walk must stop.
func (m *Machine) stepMessage(ctx context.Context, run *models.Run, contact *models.Contact, node *models.Node) bool {
	data, err := node.MessageData()
	if err != nil {
		m.failContact(contact, node.ID, "invalid message node data: "+err.Error())

		return false
	}

	body := template.Render(data.Text, contact.Vars)

	channel := data.Channel
	if channel == "" {
		channel = run.Channel
	}

	if channel == "" {
		channel = "whatsapp"
	}

	err = m.dispatcher.EnqueueSend(ctx, DispatchRequest{
		RunID:     run.ID,
		ContactID: contact.ID,
		Phone:     contact.Phone,
		Body:      body,
		Channel:   channel,
		NodeID:    node.ID,
	})
	if err != nil {
		m.failContact(contact, node.ID, "failed to enqueue message: "+err.Error())

		return false
	}

	contact.AppendHistory(models.HistoryEntry{
		Type:    models.HistoryOutbound,
		NodeID:  node.ID,
		Channel: channel,
		Body:    body,
	})

	m.logger.InfoContext(ctx, "Message enqueued",
		"run_id", run.ID, "contact_id", contact.ID, "channel", channel, "body_length", len(body))

	return true
}

// stepAPI performs an api node's call and merges mapped response values into
// the contact's vars. Returns false when the contact was failed.
func (m *Machine) stepAPI(ctx context.Context, run *models.Run, contact *models.Contact, node *models.Node) bool {
	data, err := node.APIData()
	if err != nil {
		m.failContact(contact, node.ID, "invalid api node data: "+err.Error())

		return false
	}

	if m.api == nil {
		m.logger.DebugContext(ctx, "API node skipped, no caller configured",
			"run_id", run.ID, "node_id", node.ID)
		contact.AppendHistory(models.HistoryEntry{
			Type:    models.HistoryAPICall,
			NodeID:  node.ID,
			Message: "skipped",
		})

		return true
	}

	req := APIRequest{
		URL:      template.Render(data.URL, contact.Vars),
		Method:   data.Method,
		Body:     template.Render(data.Body, contact.Vars),
		Headers:  data.Headers,
		Mappings: data.Mappings,
	}

	mapped, err := m.api.Call(ctx, req)
	if err != nil {
		contact.AppendHistory(models.HistoryEntry{
			Type:    models.HistoryError,
			NodeID:  node.ID,
			Message: "api call failed: " + err.Error(),
		})

		if data.ContinueOnError {
			m.logger.WarnContext(ctx, "API node failed, continuing",
				"run_id", run.ID, "contact_id", contact.ID, "node_id", node.ID, "error", err)

			return true
		}

		contact.State = models.ContactStateFailed
		contact.Cursor = ""
		contact.DueAt = nil

		return false
	}

	if len(mapped) > 0 {
		if contact.Vars == nil {
			contact.Vars = make(map[string]any, len(mapped))
		}

		for key, value := range mapped {
			contact.Vars[key] = value
		}
	}

	contact.AppendHistory(models.HistoryEntry{
		Type:   models.HistoryAPICall,
		NodeID: node.ID,
	})

	return true
}

// stepDelay computes a delay node's due time. When the due time is in the
// future the cursor is moved past the delay node and the contact suspends as
// data (DueAt); nothing blocks.
func (m *Machine) stepDelay(contact *models.Contact, node *models.Node, g *Graph) (suspended, failed bool) {
	data, err := node.DelayData()
	if err != nil {
		m.failContact(contact, node.ID, "invalid delay node data: "+err.Error())

		return false, true
	}

	now := m.now()
	due := now

	switch {
	case data.Mode == "until" || (data.Until != "" && data.Mode == ""):
		until, err := time.Parse(time.RFC3339, data.Until)
		if err != nil {
			m.failContact(contact, node.ID, "invalid delay until timestamp: "+err.Error())

			return false, true
		}

		due = until

	case data.Duration != "":
		d, err := duration.Parse(data.Duration)
		if err != nil {
			m.failContact(contact, node.ID, "invalid delay duration: "+err.Error())

			return false, true
		}

		due = now.Add(d)

	default:
		due = now.Add(time.Duration(data.Seconds * float64(time.Second)))
	}

	next := g.FirstEdgeFrom(node.ID)
	if next == nil {
		m.finishContact(contact)

		return false, false
	}

	contact.Cursor = next.Target

	if due.After(now) {
		contact.DueAt = &due

		return true, false
	}

	return false, false
}

// stepWait snapshots the node's outgoing conditions onto the contact and
// suspends it. A branch node holding a buffered reply evaluates immediately
// instead of waiting.
func (m *Machine) stepWait(ctx context.Context, g *Graph, run *models.Run, contact *models.Contact, node *models.Node) {
	wait := &models.WaitState{
		NodeID:     node.ID,
		Conditions: g.ConditionsFrom(node.ID),
	}

	if data, err := node.WaitData(); err == nil && data.Timeout != "" {
		if d, err := duration.Parse(data.Timeout); err == nil && d > 0 {
			until := m.now().Add(d)
			wait.Until = &until
		}
	}

	contact.Wait = wait
	contact.DueAt = nil

	if node.Type == models.NodeTypeBranch && contact.LastInbound != nil {
		contact.State = models.ContactStateWaitingInbound
		m.Resume(ctx, g, run, contact)

		return
	}

	contact.State = models.ContactStateWaiting

	m.logger.InfoContext(ctx, "Contact waiting for inbound reply",
		"run_id", run.ID, "contact_id", contact.ID, "node_id", node.ID,
		"conditions", len(wait.Conditions))
}

// finishContact marks graceful termination.
func (m *Machine) finishContact(contact *models.Contact) {
	contact.State = models.ContactStateDone
	contact.Cursor = ""
	contact.DueAt = nil
	contact.Wait = nil
	contact.LastInbound = nil
}

// failContact marks a contact-local error. The failure never propagates to
// the run.
func (m *Machine) failContact(contact *models.Contact, nodeID, message string) {
	contact.AppendHistory(models.HistoryEntry{
		Type:    models.HistoryError,
		NodeID:  nodeID,
		Message: message,
	})
	contact.State = models.ContactStateFailed
	contact.Cursor = ""
	contact.DueAt = nil
	contact.Wait = nil
	contact.LastInbound = nil
}
