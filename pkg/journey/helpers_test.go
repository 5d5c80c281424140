package journey

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/jornada-io/jornada/pkg/eventbus"
	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryPersistence is an in-memory store for tests. ContactsByRun returns
// clones so SaveContactIf's compare-and-swap actually compares against the
// stored record, like a real backend would.
type memoryPersistence struct {
	mu       sync.Mutex
	journeys map[string]*models.Journey
	runs     map[string]*models.Run
	contacts map[string]*models.Contact
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{
		journeys: make(map[string]*models.Journey),
		runs:     make(map[string]*models.Run),
		contacts: make(map[string]*models.Contact),
	}
}

func (m *memoryPersistence) JourneyRepository() persistence.JourneyRepository { return m }
func (m *memoryPersistence) RunRepository() persistence.RunRepository         { return m }
func (m *memoryPersistence) ContactRepository() persistence.ContactRepository { return m }

func (m *memoryPersistence) HealthCheck(_ context.Context) error { return nil }
func (m *memoryPersistence) Close(_ context.Context) error       { return nil }

func (m *memoryPersistence) Journeys(_ context.Context) ([]*models.Journey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	journeys := make([]*models.Journey, 0, len(m.journeys))
	for _, journey := range m.journeys {
		journeys = append(journeys, journey)
	}

	return journeys, nil
}

func (m *memoryPersistence) JourneyByID(_ context.Context, id string) (*models.Journey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	journey, ok := m.journeys[id]
	if !ok {
		return nil, persistence.ErrJourneyNotFound
	}

	return journey, nil
}

func (m *memoryPersistence) SaveJourney(_ context.Context, journey *models.Journey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.journeys[journey.ID] = journey

	return nil
}

func (m *memoryPersistence) DeleteJourney(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.journeys, id)

	return nil
}

func (m *memoryPersistence) Runs(_ context.Context, status models.RunStatus) ([]*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]*models.Run, 0, len(m.runs))

	for _, run := range m.runs {
		if status == "" || run.Status == status {
			runs = append(runs, cloneRecord(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })

	return runs, nil
}

func (m *memoryPersistence) RunByID(_ context.Context, id string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, persistence.ErrRunNotFound
	}

	return cloneRecord(run), nil
}

func (m *memoryPersistence) SaveRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = cloneRecord(run)

	return nil
}

func (m *memoryPersistence) ContactsByRun(_ context.Context, runID string) ([]*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	contacts := make([]*models.Contact, 0)

	for _, contact := range m.contacts {
		if contact.RunID == runID {
			contacts = append(contacts, cloneRecord(contact))
		}
	}

	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })

	return contacts, nil
}

func (m *memoryPersistence) ContactByID(_ context.Context, id string) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	contact, ok := m.contacts[id]
	if !ok {
		return nil, persistence.ErrContactNotFound
	}

	return cloneRecord(contact), nil
}

func (m *memoryPersistence) SaveContact(_ context.Context, contact *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contacts[contact.ID] = cloneRecord(contact)

	return nil
}

func (m *memoryPersistence) SaveContactIf(_ context.Context, contact *models.Contact, prevState models.ContactState, prevCursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.contacts[contact.ID]
	if !ok {
		return persistence.ErrContactNotFound
	}

	if stored.State != prevState || stored.Cursor != prevCursor {
		return persistence.ErrContactConflict
	}

	m.contacts[contact.ID] = cloneRecord(contact)

	return nil
}

func (m *memoryPersistence) FindWaitingContacts(_ context.Context, phone string) ([]persistence.WaitingContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := make([]persistence.WaitingContact, 0)

	for _, contact := range m.contacts {
		if contact.Phone != phone || contact.State != models.ContactStateWaiting {
			continue
		}

		run, ok := m.runs[contact.RunID]
		if !ok || run.Status.Terminal() {
			continue
		}

		matches = append(matches, persistence.WaitingContact{
			Contact: cloneRecord(contact),
			Run:     cloneRecord(run),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Run.ID < matches[j].Run.ID })

	return matches, nil
}

func cloneRecord[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}

	return out
}

// recordingDispatcher captures enqueued messages.
type recordingDispatcher struct {
	mu       sync.Mutex
	requests []DispatchRequest
	err      error
}

func (d *recordingDispatcher) EnqueueSend(_ context.Context, req DispatchRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}

	d.requests = append(d.requests, req)

	return nil
}

func (d *recordingDispatcher) sent() []DispatchRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]DispatchRequest(nil), d.requests...)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) published() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

// stubAPICaller returns canned vars or an error.
type stubAPICaller struct {
	vars map[string]any
	err  error

	calls []APIRequest
}

func (s *stubAPICaller) Call(_ context.Context, req APIRequest) (map[string]any, error) {
	s.calls = append(s.calls, req)

	if s.err != nil {
		return nil, s.err
	}

	return s.vars, nil
}
