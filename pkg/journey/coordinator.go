package journey

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jornada-io/jornada/pkg/eventbus"
	"github.com/jornada-io/jornada/pkg/events"
	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// LaunchRequest carries a launch call's parameters. Rows, PhoneKey and
// Mapping override the journey's audience node when provided.
type LaunchRequest struct {
	JourneyID string
	Channel   string
	Rows      []map[string]any
	PhoneKey  string
	Mapping   map[string]string
}

// Coordinator drives runs: it seeds contacts at launch, advances them on
// tick, buffers inbound replies and maintains run status. Ticks for the same
// run are serialized; everything else relies on the contact repository's
// conditional writes.
type Coordinator struct {
	persistence persistence.Persistence
	machine     *Machine
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time

	runLocks sync.Map // run id -> *sync.Mutex
	stopping sync.Map // run id -> struct{}
}

func NewCoordinator(p persistence.Persistence, machine *Machine, publisher eventbus.EventPublisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		persistence: p,
		machine:     machine,
		publisher:   publisher,
		logger:      logger.With("module", "journey_coordinator"),
		now:         time.Now,
	}
}

// Launch creates a run from a published journey, seeds one contact per
// audience row and requests the first tick.
func (c *Coordinator) Launch(ctx context.Context, req LaunchRequest) (*models.Run, error) {
	journey, err := c.persistence.JourneyRepository().JourneyByID(ctx, req.JourneyID)
	if err != nil {
		return nil, err
	}

	if journey.Status != models.JourneyStatusPublished {
		return nil, fmt.Errorf("%w: journey %s is %s", persistence.ErrJourneyNotLaunchable, journey.ID, journey.Status)
	}

	for _, node := range journey.Nodes {
		if err := models.ValidateNodeData(node); err != nil {
			return nil, fmt.Errorf("%w: %s", persistence.ErrJourneyNotLaunchable, err)
		}
	}

	rows, phoneKey, mapping := req.Rows, req.PhoneKey, req.Mapping
	if len(rows) == 0 {
		rows, phoneKey, mapping, err = audienceFromJourney(journey)
		if err != nil {
			return nil, err
		}
	}

	if phoneKey == "" {
		phoneKey = "phone"
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: journey %s has no audience", persistence.ErrJourneyNotLaunchable, journey.ID)
	}

	now := c.now().UTC()
	run := &models.Run{
		ID:          uuid.New().String(),
		JourneyID:   journey.ID,
		JourneyName: journey.Name,
		Channel:     req.Channel,
		Status:      models.RunStatusQueued,
		CreatedAt:   now,
	}

	contacts := make([]*models.Contact, 0, len(rows))

	for i, row := range rows {
		phone := strings.TrimSpace(stringValue(row[phoneKey]))
		if phone == "" {
			c.logger.WarnContext(ctx, "Skipping audience row without phone",
				"journey_id", journey.ID, "row", i, "phone_key", phoneKey)

			continue
		}

		contacts = append(contacts, &models.Contact{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			Phone:     phone,
			Vars:      contactVars(row, mapping),
			State:     models.ContactStateActive,
			UpdatedAt: now,
		})
	}

	if len(contacts) == 0 {
		return nil, fmt.Errorf("%w: no audience row has a usable phone", persistence.ErrJourneyNotLaunchable)
	}

	run.Total = len(contacts)

	if err := c.persistence.RunRepository().SaveRun(ctx, run); err != nil {
		return nil, persistence.NewRunError("launch", run.ID, err)
	}

	for _, contact := range contacts {
		if err := c.persistence.ContactRepository().SaveContact(ctx, contact); err != nil {
			return nil, persistence.NewContactError("launch", run.ID, contact.ID, err)
		}
	}

	c.logger.InfoContext(ctx, "Run launched",
		"run_id", run.ID, "journey_id", journey.ID, "total", run.Total)

	c.publishTick(ctx, run.ID, events.TickReasonLaunch)

	return run, nil
}

// Tick performs one scheduling pass over a run: due contacts advance,
// buffered replies resume, expired waits time out, and the run's processed
// count and status are recomputed. Ticks are idempotent; an extra tick never
// double-advances a contact.
func (c *Coordinator) Tick(ctx context.Context, runID string) error {
	mu := c.runLock(runID)
	mu.Lock()
	defer mu.Unlock()

	run, err := c.persistence.RunRepository().RunByID(ctx, runID)
	if err != nil {
		return persistence.NewRunError("tick", runID, err)
	}

	if run.Status.Terminal() {
		c.logger.DebugContext(ctx, "Tick on terminal run ignored", "run_id", runID, "status", run.Status)

		return nil
	}

	if run.Status == models.RunStatusQueued {
		started := c.now().UTC()
		run.Status = models.RunStatusRunning
		run.StartedAt = &started
	}

	journey, err := c.persistence.JourneyRepository().JourneyByID(ctx, run.JourneyID)
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = "journey not found: " + run.JourneyID
		ended := c.now().UTC()
		run.EndedAt = &ended

		if saveErr := c.persistence.RunRepository().SaveRun(ctx, run); saveErr != nil {
			return persistence.NewRunError("tick", runID, saveErr)
		}

		c.publishEvent(ctx, run.ID, &events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run.ID),
			Error:     run.Error,
		})

		return nil
	}

	graph := NewGraph(journey)
	now := c.now()

	contacts, err := c.persistence.ContactRepository().ContactsByRun(ctx, run.ID)
	if err != nil {
		return persistence.NewRunError("tick", runID, err)
	}

	for _, contact := range contacts {
		if _, stopped := c.stopping.Load(run.ID); stopped {
			break
		}

		if contact.State.Terminal() {
			continue
		}

		prevState, prevCursor := contact.State, contact.Cursor

		changed := c.stepContact(ctx, graph, run, contact, now)
		if !changed {
			continue
		}

		contact.UpdatedAt = c.now().UTC()

		err := c.persistence.ContactRepository().SaveContactIf(ctx, contact, prevState, prevCursor)
		if err != nil {
			if persistence.IsContactConflict(err) {
				c.logger.WarnContext(ctx, "Contact changed under tick, discarding result",
					"run_id", run.ID, "contact_id", contact.ID)

				continue
			}

			return persistence.NewContactError("tick", run.ID, contact.ID, err)
		}
	}

	contacts, err = c.persistence.ContactRepository().ContactsByRun(ctx, run.ID)
	if err != nil {
		return persistence.NewRunError("tick", runID, err)
	}

	processed := 0

	for _, contact := range contacts {
		if contact.State.Terminal() {
			processed++
		}
	}

	run.Processed = processed

	if _, stopped := c.stopping.Load(run.ID); stopped {
		// Stop already persisted the final status; do not overwrite it.
		return nil
	}

	if processed == run.Total {
		ended := c.now().UTC()
		run.Status = models.RunStatusDone
		run.EndedAt = &ended

		var runtime time.Duration
		if run.StartedAt != nil {
			runtime = ended.Sub(*run.StartedAt)
		}

		c.logger.InfoContext(ctx, "Run finished",
			"run_id", run.ID, "total", run.Total, "duration", runtime)

		c.publishEvent(ctx, run.ID, &events.RunFinished{
			BaseEvent: events.NewBaseEvent(events.RunFinishedEvent, run.ID),
			Total:     run.Total,
			Processed: run.Processed,
			Duration:  runtime,
		})
	}

	if err := c.persistence.RunRepository().SaveRun(ctx, run); err != nil {
		return persistence.NewRunError("tick", runID, err)
	}

	return nil
}

// stepContact applies the one transition a contact is eligible for at now.
// A panic inside the state machine fails the contact, not the run.
func (c *Coordinator) stepContact(ctx context.Context, graph *Graph, run *models.Run, contact *models.Contact, now time.Time) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "Panic while advancing contact",
				"run_id", run.ID, "contact_id", contact.ID, "panic", r)
			contact.AppendHistory(models.HistoryEntry{
				Type:    models.HistoryError,
				Message: fmt.Sprintf("panic: %v", r),
			})
			contact.State = models.ContactStateFailed
			contact.Cursor = ""
			contact.DueAt = nil
			changed = true
		}
	}()

	switch contact.State {
	case models.ContactStateWaiting:
		if contact.Wait == nil || contact.Wait.Until == nil || now.Before(*contact.Wait.Until) {
			return false
		}

		c.machine.ExpireWait(ctx, graph, run, contact)

		return true

	case models.ContactStateWaitingInbound:
		c.machine.Resume(ctx, graph, run, contact)

		return true

	case models.ContactStateActive:
		if !contact.Due(now) {
			return false
		}

		c.machine.Advance(ctx, graph, run, contact)

		return true
	}

	return false
}

// Stop halts a run. In-flight contact advances finish; nothing new starts.
func (c *Coordinator) Stop(ctx context.Context, runID string) error {
	run, err := c.persistence.RunRepository().RunByID(ctx, runID)
	if err != nil {
		return persistence.NewRunError("stop", runID, err)
	}

	if run.Status.Terminal() {
		return nil
	}

	c.stopping.Store(runID, struct{}{})

	ended := c.now().UTC()
	run.Status = models.RunStatusStopped
	run.EndedAt = &ended

	if err := c.persistence.RunRepository().SaveRun(ctx, run); err != nil {
		return persistence.NewRunError("stop", runID, err)
	}

	c.logger.InfoContext(ctx, "Run stopped", "run_id", runID, "processed", run.Processed, "total", run.Total)

	return nil
}

// OnInboundReply buffers an inbound message onto the waiting contact for the
// sender's phone and requests a tick to resume it. Replies from phones with
// no waiting contact are dropped with a warning.
func (c *Coordinator) OnInboundReply(ctx context.Context, phone, text, payload string) error {
	phone = strings.TrimSpace(strings.TrimPrefix(phone, "whatsapp:"))
	if phone == "" {
		return nil
	}

	matches, err := c.persistence.ContactRepository().FindWaitingContacts(ctx, phone)
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		c.logger.WarnContext(ctx, "Inbound reply without waiting contact, dropping",
			"phone", phone, "text_length", len(text))

		return nil
	}

	if len(matches) > 1 {
		c.logger.WarnContext(ctx, "Phone waiting in multiple runs, delivering to first",
			"phone", phone, "runs", len(matches))
	}

	contact, run := matches[0].Contact, matches[0].Run

	prevState, prevCursor := contact.State, contact.Cursor

	contact.LastInbound = &models.Inbound{
		At:      c.now().UTC(),
		Text:    text,
		Payload: payload,
	}
	contact.State = models.ContactStateWaitingInbound
	contact.AppendHistory(models.HistoryEntry{
		Type:    models.HistoryInbound,
		Text:    text,
		Payload: payload,
	})
	contact.UpdatedAt = c.now().UTC()

	err = c.persistence.ContactRepository().SaveContactIf(ctx, contact, prevState, prevCursor)
	if err != nil {
		if persistence.IsContactConflict(err) {
			c.logger.WarnContext(ctx, "Contact changed while buffering reply, dropping",
				"run_id", run.ID, "contact_id", contact.ID)

			return nil
		}

		return persistence.NewContactError("inbound", run.ID, contact.ID, err)
	}

	c.logger.InfoContext(ctx, "Inbound reply buffered",
		"run_id", run.ID, "contact_id", contact.ID, "phone", phone)

	c.publishEvent(ctx, run.ID, &events.InboundReceived{
		BaseEvent: events.NewBaseEvent(events.InboundReceivedEvent, run.ID),
		ContactID: contact.ID,
		Phone:     phone,
		Text:      text,
		Payload:   payload,
	})

	c.publishTick(ctx, run.ID, events.TickReasonInbound)

	return nil
}

// Stats counts contacts by state for a run.
func (c *Coordinator) Stats(ctx context.Context, runID string) (*models.RunStats, error) {
	run, err := c.persistence.RunRepository().RunByID(ctx, runID)
	if err != nil {
		return nil, persistence.NewRunError("stats", runID, err)
	}

	contacts, err := c.persistence.ContactRepository().ContactsByRun(ctx, runID)
	if err != nil {
		return nil, persistence.NewRunError("stats", runID, err)
	}

	stats := &models.RunStats{Total: run.Total}

	for _, contact := range contacts {
		switch contact.State {
		case models.ContactStateActive:
			stats.Active++
		case models.ContactStateWaiting:
			stats.Waiting++
		case models.ContactStateWaitingInbound:
			stats.WaitingInbound++
		case models.ContactStateDone:
			stats.Done++
		case models.ContactStateFailed:
			stats.Failed++
		}
	}

	stats.Processed = stats.Done + stats.Failed
	if stats.Total > 0 {
		stats.Progress = stats.Processed * 100 / stats.Total
	}

	return stats, nil
}

func (c *Coordinator) runLock(runID string) *sync.Mutex {
	mu, _ := c.runLocks.LoadOrStore(runID, &sync.Mutex{})

	return mu.(*sync.Mutex)
}

func (c *Coordinator) publishTick(ctx context.Context, runID string, reason events.TickReason) {
	c.publishEvent(ctx, runID, &events.RunTickRequested{
		BaseEvent: events.NewBaseEvent(events.RunTickRequestedEvent, runID),
		Reason:    reason,
	})
}

func (c *Coordinator) publishEvent(ctx context.Context, runID string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(ctx, runID, event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish event",
			"run_id", runID, "event_type", event.GetType(), "error", err)
	}
}

// audienceFromJourney extracts launch rows from the journey's audience node.
func audienceFromJourney(journey *models.Journey) ([]map[string]any, string, map[string]string, error) {
	for _, node := range journey.Nodes {
		if node.Type != models.NodeTypeAudience {
			continue
		}

		data, err := node.AudienceData()
		if err != nil {
			return nil, "", nil, fmt.Errorf("invalid audience node data: %w", err)
		}

		return data.Rows, data.PhoneKey, data.Mapping, nil
	}

	return nil, "", nil, nil
}

// contactVars seeds a contact's template variables from an audience row.
// With a mapping only the mapped columns are kept, under their target names;
// without one every column carries over.
func contactVars(row map[string]any, mapping map[string]string) map[string]any {
	vars := make(map[string]any, len(row))

	if len(mapping) == 0 {
		for key, value := range row {
			vars[key] = value
		}

		return vars
	}

	for column, name := range mapping {
		if value, ok := row[column]; ok {
			vars[name] = value
		}
	}

	return vars
}

func stringValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		// JSON numbers decode as float64; phone columns often arrive this way.
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
