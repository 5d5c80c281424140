package journey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jornada-io/jornada/pkg/events"
	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

type coordinatorFixture struct {
	store      *memoryPersistence
	dispatcher *recordingDispatcher
	publisher  *recordingPublisher
	machine    *Machine
	coord      *Coordinator
	now        time.Time
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()

	f := &coordinatorFixture{
		store:      newMemoryPersistence(),
		dispatcher: &recordingDispatcher{},
		publisher:  &recordingPublisher{},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.machine = NewMachine(f.dispatcher, nil, testLogger())
	f.machine.now = func() time.Time { return f.now }

	f.coord = NewCoordinator(f.store, f.machine, f.publisher, testLogger())
	f.coord.now = func() time.Time { return f.now }

	return f
}

func (f *coordinatorFixture) advanceClock(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *coordinatorFixture) saveJourney(t *testing.T, journey *models.Journey) {
	t.Helper()
	require.NoError(t, f.store.SaveJourney(context.Background(), journey))
}

func (f *coordinatorFixture) eventTypes() []events.EventType {
	published := f.publisher.published()
	types := make([]events.EventType, 0, len(published))

	for _, event := range published {
		types = append(types, event.GetType())
	}

	return types
}

func audienceJourney() *models.Journey {
	return &models.Journey{
		ID:     "j1",
		Name:   "boas-vindas",
		Status: models.JourneyStatusPublished,
		Nodes: []*models.Node{
			{ID: "aud", Type: models.NodeTypeAudience, Data: map[string]any{
				"phoneKey": "telefone",
				"rows": []any{
					map[string]any{"telefone": "+5511999990001", "nome": "Ana"},
					map[string]any{"telefone": "+5511999990002", "nome": "Bruno"},
					map[string]any{"telefone": "", "nome": "SemFone"},
				},
				"mapping": map[string]any{"nome": "name"},
			}},
			{ID: "msg", Type: models.NodeTypeMessage, Data: map[string]any{"text": "Oi {{ name }}!"}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "aud", Target: "msg"},
			{ID: "e2", Source: "msg", Target: "end"},
		},
	}
}

func TestLaunchSeedsContacts(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.saveJourney(t, audienceJourney())

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j1", Channel: "whatsapp"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusQueued, run.Status)
	assert.Equal(t, 2, run.Total, "row without phone is skipped")
	assert.Equal(t, "boas-vindas", run.JourneyName)

	contacts, err := f.store.ContactsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	for _, contact := range contacts {
		assert.Equal(t, models.ContactStateActive, contact.State)
		assert.Empty(t, contact.Cursor)
		assert.Contains(t, contact.Vars, "name")
		assert.NotContains(t, contact.Vars, "telefone", "mapping keeps only mapped columns")
	}

	require.Equal(t, []events.EventType{events.RunTickRequestedEvent}, f.eventTypes())
}

func TestLaunchRejectsUnpublishedJourney(t *testing.T) {
	f := newCoordinatorFixture(t)

	journey := audienceJourney()
	journey.Status = models.JourneyStatusDraft
	f.saveJourney(t, journey)

	_, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j1"})
	assert.ErrorIs(t, err, persistence.ErrJourneyNotLaunchable)
}

func TestLaunchRejectsInvalidNodeData(t *testing.T) {
	f := newCoordinatorFixture(t)

	journey := audienceJourney()
	journey.Nodes[1].Data = map[string]any{"text": ""}
	f.saveJourney(t, journey)

	_, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j1"})
	assert.ErrorIs(t, err, persistence.ErrJourneyNotLaunchable)
}

func TestLaunchWithExplicitRows(t *testing.T) {
	f := newCoordinatorFixture(t)

	journey := audienceJourney()
	journey.Nodes[0].Data = nil
	f.saveJourney(t, journey)

	run, err := f.coord.Launch(context.Background(), LaunchRequest{
		JourneyID: "j1",
		Rows:      []map[string]any{{"phone": "+5511988880000", "name": "Carla"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Total)
}

func TestTickRunsLinearFlowToCompletion(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.saveJourney(t, audienceJourney())

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j1", Channel: "whatsapp"})
	require.NoError(t, err)

	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	run, err = f.store.RunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusDone, run.Status)
	assert.Equal(t, 2, run.Processed)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.EndedAt)

	sent := f.dispatcher.sent()
	require.Len(t, sent, 2)

	bodies := []string{sent[0].Body, sent[1].Body}
	assert.ElementsMatch(t, []string{"Oi Ana!", "Oi Bruno!"}, bodies)

	assert.Contains(t, f.eventTypes(), events.RunFinishedEvent)
}

func TestTickIsIdempotentOnTerminalRun(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.saveJourney(t, audienceJourney())

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j1"})
	require.NoError(t, err)

	require.NoError(t, f.coord.Tick(context.Background(), run.ID))
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	assert.Len(t, f.dispatcher.sent(), 2, "second tick sends nothing")
}

func TestTickFailsRunWhenJourneyMissing(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.saveJourney(t, audienceJourney())

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j1"})
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteJourney(context.Background(), "j1"))
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	run, err = f.store.RunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, f.eventTypes(), events.RunFailedEvent)
}

func waitCoordinatorJourney() *models.Journey {
	return &models.Journey{
		ID:     "j2",
		Name:   "confirmacao",
		Status: models.JourneyStatusPublished,
		Nodes: []*models.Node{
			{ID: "aud", Type: models.NodeTypeAudience, Data: map[string]any{
				"phoneKey": "phone",
				"rows":     []any{map[string]any{"phone": "+5511999990001", "name": "Ana"}},
			}},
			{ID: "ask", Type: models.NodeTypeMessage, Data: map[string]any{"text": "Confirma, {{ name }}?"}},
			{ID: "w", Type: models.NodeTypeWait, Data: map[string]any{"timeout": "P1D"}},
			{ID: "yes", Type: models.NodeTypeMessage, Data: map[string]any{"text": "Confirmado!"}},
			{ID: "later", Type: models.NodeTypeMessage, Data: map[string]any{"text": "Sem resposta."}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "aud", Target: "ask"},
			{ID: "e2", Source: "ask", Target: "w"},
			{ID: "e3", Source: "w", Target: "yes", Data: &models.EdgeData{ConditionType: models.ConditionKeywords, Value: "sim|quero"}},
			{ID: "e4", Source: "w", Target: "later", Data: &models.EdgeData{IsTimeout: true}},
			{ID: "e5", Source: "yes", Target: "end"},
			{ID: "e6", Source: "later", Target: "end"},
		},
	}
}

func TestInboundReplyResumesWaitingContact(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.saveJourney(t, waitCoordinatorJourney())

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j2"})
	require.NoError(t, err)

	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	contacts, err := f.store.ContactsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, models.ContactStateWaiting, contacts[0].State)

	// Reply arrives with the transport prefix still on the phone.
	require.NoError(t, f.coord.OnInboundReply(context.Background(), "whatsapp:+5511999990001", "Sim, quero", ""))

	contacts, err = f.store.ContactsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.ContactStateWaitingInbound, contacts[0].State)

	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	contacts, err = f.store.ContactsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContactStateDone, contacts[0].State)

	sent := f.dispatcher.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Confirmado!", sent[1].Body)

	run, err = f.store.RunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusDone, run.Status)

	assert.Contains(t, f.eventTypes(), events.InboundReceivedEvent)
}

func TestInboundReplyWithoutWaitingContactIsDropped(t *testing.T) {
	f := newCoordinatorFixture(t)

	require.NoError(t, f.coord.OnInboundReply(context.Background(), "+5511900000000", "oi", ""))
	assert.Empty(t, f.eventTypes())
}

func TestWaitTimeoutRoutesToTimeoutEdge(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.saveJourney(t, waitCoordinatorJourney())

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j2"})
	require.NoError(t, err)
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	// A tick before the deadline changes nothing.
	f.advanceClock(12 * time.Hour)
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	contacts, err := f.store.ContactsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.ContactStateWaiting, contacts[0].State)

	f.advanceClock(13 * time.Hour)
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	contacts, err = f.store.ContactsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContactStateDone, contacts[0].State)

	sent := f.dispatcher.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Sem resposta.", sent[1].Body)
}

func TestDelayedContactWaitsForDueTime(t *testing.T) {
	f := newCoordinatorFixture(t)

	journey := audienceJourney()
	journey.Nodes = []*models.Node{
		journey.Nodes[0],
		{ID: "d", Type: models.NodeTypeDelay, Data: map[string]any{"duration": "PT1H"}},
		journey.Nodes[1],
		journey.Nodes[2],
	}
	journey.Edges = []*models.Edge{
		{ID: "e1", Source: "aud", Target: "d"},
		{ID: "e2", Source: "d", Target: "msg"},
		{ID: "e3", Source: "msg", Target: "end"},
	}
	f.saveJourney(t, journey)

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j1"})
	require.NoError(t, err)
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	assert.Empty(t, f.dispatcher.sent(), "messages held back until the delay elapses")

	run, err = f.store.RunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	f.advanceClock(time.Hour)
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	assert.Len(t, f.dispatcher.sent(), 2)

	run, err = f.store.RunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusDone, run.Status)
}

func TestStopHaltsRun(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.saveJourney(t, waitCoordinatorJourney())

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j2"})
	require.NoError(t, err)

	require.NoError(t, f.coord.Stop(context.Background(), run.ID))

	run, err = f.store.RunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusStopped, run.Status)
	require.NotNil(t, run.EndedAt)

	// A tick after stop does nothing.
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))
	assert.Empty(t, f.dispatcher.sent())

	// Stopping again is a no-op.
	require.NoError(t, f.coord.Stop(context.Background(), run.ID))
}

func TestStats(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.saveJourney(t, waitCoordinatorJourney())

	run, err := f.coord.Launch(context.Background(), LaunchRequest{JourneyID: "j2"})
	require.NoError(t, err)
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	stats, err := f.coord.Stats(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Waiting)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 0, stats.Progress)

	require.NoError(t, f.coord.OnInboundReply(context.Background(), "+5511999990001", "sim", ""))
	require.NoError(t, f.coord.Tick(context.Background(), run.ID))

	stats, err = f.coord.Stats(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 100, stats.Progress)
}
