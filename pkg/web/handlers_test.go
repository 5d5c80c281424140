package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jornada-io/jornada/pkg/journey"
	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
	"github.com/jornada-io/jornada/pkg/persistence/file"
	"github.com/jornada-io/jornada/pkg/web"
)

type noopDispatcher struct{}

func (noopDispatcher) EnqueueSend(_ context.Context, _ journey.DispatchRequest) error {
	return nil
}

type testEnv struct {
	app         *fiber.App
	persistence persistence.Persistence
	coordinator *journey.Coordinator
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := file.NewPersistence(t.TempDir())
	machine := journey.NewMachine(noopDispatcher{}, nil, logger)
	coordinator := journey.NewCoordinator(p, machine, nil, logger)
	journeys := journey.NewRepository(p)
	validate := validator.New(validator.WithRequiredStructEnabled())

	return &testEnv{
		app:         web.NewApp(journeys, coordinator, p, validate),
		persistence: p,
		coordinator: coordinator,
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() {
		_ = resp.Body.Close()
	}()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func validJourneyRequest() web.CreateJourneyRequest {
	return web.CreateJourneyRequest{
		Name: "boas-vindas",
		Nodes: []*models.Node{
			{ID: "aud", Type: models.NodeTypeAudience, Data: map[string]any{
				"phoneKey": "phone",
				"rows":     []any{map[string]any{"phone": "+5511999990001", "name": "Ana"}},
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

func TestCreateJourney(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/journeys/", validJourneyRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[models.Journey](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "boas-vindas", created.Name)
	assert.Equal(t, models.JourneyStatusDraft, created.Status)
}

func TestCreateJourneyValidation(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/journeys/", web.CreateJourneyRequest{Name: "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJourneyNotFound(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodGet, "/journeys/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJourneyLifecycle(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/journeys/", validJourneyRequest())
	created := decodeBody[models.Journey](t, resp)

	// Draft journeys cannot be launched.
	resp = doJSON(t, env.app, http.MethodPost, "/journeys/"+created.ID+"/launch", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, env.app, http.MethodPost, "/journeys/"+created.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	published := decodeBody[models.Journey](t, resp)
	assert.Equal(t, models.JourneyStatusPublished, published.Status)

	resp = doJSON(t, env.app, http.MethodPost, "/journeys/"+created.ID+"/launch", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	run := decodeBody[models.Run](t, resp)
	assert.Equal(t, models.RunStatusQueued, run.Status)
	assert.Equal(t, 1, run.Total)

	resp = doJSON(t, env.app, http.MethodGet, "/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, env.app, http.MethodGet, "/runs/"+run.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeBody[models.RunStats](t, resp)
	assert.Equal(t, 1, stats.Total)

	resp = doJSON(t, env.app, http.MethodPost, "/runs/"+run.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stopped := decodeBody[models.Run](t, resp)
	assert.Equal(t, models.RunStatusStopped, stopped.Status)
}

func TestUpdateJourney(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/journeys/", validJourneyRequest())
	created := decodeBody[models.Journey](t, resp)

	newName := "boas-vindas-v2"
	resp = doJSON(t, env.app, http.MethodPatch, "/journeys/"+created.ID, web.UpdateJourneyRequest{
		Name: &newName,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[models.Journey](t, resp)
	assert.Equal(t, newName, updated.Name)
	assert.Len(t, updated.Nodes, 3, "nodes untouched by partial update")
}

func TestDeleteJourney(t *testing.T) {
	env := setupTestApp(t)

	resp := doJSON(t, env.app, http.MethodPost, "/journeys/", validJourneyRequest())
	created := decodeBody[models.Journey](t, resp)

	resp = doJSON(t, env.app, http.MethodDelete, "/journeys/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, env.app, http.MethodGet, "/journeys/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLaunchWithExplicitAudience(t *testing.T) {
	env := setupTestApp(t)

	req := validJourneyRequest()
	req.Nodes[0].Data = nil

	resp := doJSON(t, env.app, http.MethodPost, "/journeys/", req)
	created := decodeBody[models.Journey](t, resp)

	resp = doJSON(t, env.app, http.MethodPost, "/journeys/"+created.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, env.app, http.MethodPost, "/journeys/"+created.ID+"/launch", web.LaunchRunRequest{
		Channel: "sms",
		Rows: []map[string]any{
			{"phone": "+5511999990001"},
			{"phone": "+5511999990002"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decodeBody[models.Run](t, resp)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, "sms", run.Channel)
}

func TestGetRunsFilter(t *testing.T) {
	env := setupTestApp(t)
	ctx := context.Background()

	require.NoError(t, env.persistence.RunRepository().SaveRun(ctx, &models.Run{
		ID: "r1", JourneyID: "j1", Status: models.RunStatusDone,
	}))
	require.NoError(t, env.persistence.RunRepository().SaveRun(ctx, &models.Run{
		ID: "r2", JourneyID: "j1", Status: models.RunStatusRunning,
	}))

	resp := doJSON(t, env.app, http.MethodGet, "/runs/?status=running", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	runs := decodeBody[[]models.Run](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)
}
