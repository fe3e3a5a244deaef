// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/noldarim/wfbuilder/internal/config"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/protocol"
	"github.com/noldarim/wfbuilder/internal/session"
	"github.com/noldarim/wfbuilder/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 5 * time.Second

type harness struct {
	srv    *Server
	http   *httptest.Server
	client *api.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := New(&config.DevServerConfig{Host: "127.0.0.1", Port: 8000, StageDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	srv.StartBroadcaster(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})

	client, err := api.New(ts.URL)
	require.NoError(t, err)
	return &harness{srv: srv, http: ts, client: client}
}

func (h *harness) streamURL() string {
	return "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws/progress"
}

// watch connects a session to the progress socket and waits until the
// server has registered it.
func (h *harness) watch(t *testing.T) (*session.Session, *testutil.EventRecorder) {
	t.Helper()
	s, err := session.New(session.Options{Endpoint: h.streamURL()})
	require.NoError(t, err)
	rec := testutil.NewEventRecorder()
	s.Subscribe(rec)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	require.Eventually(t, func() bool { return h.srv.Clients() == 1 }, wait, 5*time.Millisecond)
	return s, rec
}

func waitForKind(t *testing.T, rec *testutil.EventRecorder, kind protocol.Kind) protocol.Event {
	t.Helper()
	var found protocol.Event
	require.Eventually(t, func() bool {
		for _, ev := range rec.Events() {
			if ev.Kind() == kind {
				found = ev
				return true
			}
		}
		return false
	}, wait, 5*time.Millisecond)
	return found
}

func TestServer_GenerateStreamsFullRun(t *testing.T) {
	h := newHarness(t)
	s, rec := h.watch(t)
	ctx := context.Background()

	wf, err := h.client.Generate(ctx, api.WorkflowRequest{Description: "a lighthouse at dusk"})
	require.NoError(t, err)
	assert.Equal(t, api.WorkflowPending, wf.Status)
	assert.Equal(t, "1024x1024", wf.Metadata["dimensions"])
	assert.Equal(t, "flux", wf.Metadata["model_type"])

	done := waitForKind(t, rec, protocol.KindComplete).(protocol.CompleteEvent)
	assert.Equal(t, wf.ID, done.WorkflowID)
	assert.Equal(t, "Workflow generated successfully!", done.Message)

	assert.Eventually(t, func() bool {
		c := s.Progress().Counts()
		return c.Completed == pipeline.Len()
	}, wait, 5*time.Millisecond)

	orchestrator, ok := s.Progress().Get(orchestratorStage)
	require.True(t, ok)
	assert.Equal(t, pipeline.StatusCompleted, orchestrator.Status)
	assert.Len(t, s.Progress().Informational(), 1)

	first := rec.Events()[0].(protocol.StatusEvent)
	assert.Equal(t, "processing", first.Status)

	got, err := h.client.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, api.WorkflowCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Len(t, got.AgentProgress, pipeline.Len()+1)
	for _, ap := range got.AgentProgress {
		assert.Equal(t, "completed", ap.Status, ap.Name)
		assert.NotNil(t, ap.CompletedAt, ap.Name)
	}

	doc, err := h.client.Download(ctx, wf.ID)
	require.NoError(t, err)
	var graph map[string]any
	require.NoError(t, json.Unmarshal(doc, &graph))
	assert.Len(t, graph["nodes"], 7)
}

func TestServer_FailStageEmitsError(t *testing.T) {
	h := newHarness(t)
	s, rec := h.watch(t)
	ctx := context.Background()

	wf, err := h.client.Generate(ctx, api.WorkflowRequest{
		Description:   "x",
		CustomOptions: map[string]any{failStageOption: "node-curator"},
	})
	require.NoError(t, err)

	ev := waitForKind(t, rec, protocol.KindError).(protocol.ErrorEvent)
	assert.Equal(t, wf.ID, ev.WorkflowID)
	assert.Contains(t, ev.Error, "Node Selection")

	assert.Eventually(t, func() bool {
		return s.Progress().Status("node-curator") == pipeline.StatusFailed
	}, wait, 5*time.Millisecond)
	assert.Equal(t, pipeline.StatusPending, s.Progress().Status("graph-engineer"))

	got, err := h.client.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, api.WorkflowFailed, got.Status)
	assert.NotEmpty(t, got.Error)

	_, err = h.client.Download(ctx, wf.ID)
	assert.True(t, api.IsNotReady(err), "got %v", err)
}

func TestServer_SubscribeFiltersByWorkflow(t *testing.T) {
	h := newHarness(t)
	s, rec := h.watch(t)
	ctx := context.Background()

	require.NoError(t, s.Send(map[string]string{"type": "subscribe", "workflow_id": "wf_other"}))
	// Echo round trip proves the subscribe was processed first.
	require.NoError(t, s.Send(map[string]string{"type": "ping"}))
	waitForKind(t, rec, protocol.Kind("echo"))

	_, err := h.client.Generate(ctx, api.WorkflowRequest{Description: "filtered out"})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	for _, ev := range rec.Events() {
		assert.Equal(t, protocol.Kind("echo"), ev.Kind())
	}
}

func TestServer_HistoryAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []string
	for _, d := range []string{"first", "second", "third"} {
		wf, err := h.client.Generate(ctx, api.WorkflowRequest{Description: d})
		require.NoError(t, err)
		ids = append(ids, wf.ID)
	}

	items, err := h.client.History(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	page, err := h.client.History(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)

	require.NoError(t, h.client.Delete(ctx, ids[0]))
	err = h.client.Delete(ctx, ids[0])
	assert.True(t, api.IsNotFound(err))

	_, err = h.client.Get(ctx, ids[0])
	var reqErr *api.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "Workflow not found", reqErr.Detail)

	_, err = h.client.Download(ctx, "wf_missing")
	assert.True(t, api.IsNotFound(err))
}

func TestServer_Catalogue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agents, err := h.client.Agents(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Len()+len(auxiliaryAgents), agents.Total)
	assert.Equal(t, "parameter-extractor", agents.Agents[0].Name)

	info, err := h.client.Pipeline(ctx)
	require.NoError(t, err)
	assert.Len(t, info.Generation.Agents, 6)
	assert.Len(t, info.Organization.Agents, 8)
	assert.Equal(t, "workflow-serializer", info.Organization.Agents[7])

	types, err := h.client.ModelTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 4)

	l, err := h.client.Loras(ctx)
	require.NoError(t, err)
	assert.Len(t, l, 3)

	res, err := h.client.Resolutions(ctx)
	require.NoError(t, err)
	assert.Len(t, res, 8)

	health, err := h.client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestServer_RejectsBadRequests(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Post(h.http.URL+"/api/workflows/generate", "application/json", strings.NewReader(`{"description":""}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "description is required", body["detail"])

	resp2, err := http.Post(h.http.URL+"/api/workflows/generate", "application/json",
		strings.NewReader(`{"description":"x","model_type":"dalle"}`))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp2.StatusCode)

	resp3, err := http.Get(h.http.URL + "/api/workflows/?limit=-1")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp3.StatusCode)
}

func TestServer_RequestIDAndCORS(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.http.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(h.http.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCORS_AllowList(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery_WritesDetail(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"detail":"Internal server error"}`, rr.Body.String())
}

func scrape(t *testing.T, h *harness) string {
	t.Helper()
	resp, err := http.Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestServer_Metrics(t *testing.T) {
	h := newHarness(t)
	_, rec := h.watch(t)

	_, err := h.client.Generate(context.Background(), api.WorkflowRequest{Description: "x"})
	require.NoError(t, err)
	waitForKind(t, rec, protocol.KindComplete)

	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(t, h), `wfbuilder_devserver_workflows_total{status="completed"} 1`)
	}, wait, 10*time.Millisecond)

	body := scrape(t, h)
	assert.Contains(t, body, "wfbuilder_devserver_websocket_clients 1")
	assert.Contains(t, body, `wfbuilder_devserver_events_broadcast_total{type="complete"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.clientConnected()
		m.broadcast("status")
		m.dropped()
		m.finished("completed")
	})
}
