package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vigil/config"
	"github.com/yairfalse/vigil/guardian"
	_ "github.com/yairfalse/vigil/providers/static"
	"github.com/yairfalse/vigil/types"
)

func testServer(t *testing.T, warm bool) (*Server, *guardian.Guardian) {
	t.Helper()
	cfg := config.Default("static", "local")
	cfg.History.ArchiveDir = t.TempDir()
	cfg.Responses.WALDir = t.TempDir()

	g, err := guardian.New(context.Background(), *cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	if warm {
		_, err = g.ScanOnce(context.Background())
		require.NoError(t, err)
	}
	return NewServer(g, ":0"), g
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAlwaysResponds(t *testing.T) {
	s, _ := testServer(t, false)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var body map[string]any
	status := getJSON(t, ts, "/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["ready"])
}

func TestQueriesReturn503BeforeReady(t *testing.T) {
	s, _ := testServer(t, false)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	for _, path := range []string{
		"/api/v1/dashboard",
		"/api/v1/events",
		"/api/v1/threats",
		"/api/v1/resources",
		"/api/v1/incidents",
		"/api/v1/models",
		"/api/v1/analytics/event-types",
	} {
		status := getJSON(t, ts, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, status, "path %s", path)
	}
}

func TestDashboard(t *testing.T) {
	s, _ := testServer(t, true)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var snap guardian.Dashboard
	status := getJSON(t, ts, "/api/v1/dashboard", &snap)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, snap.Resources)
	assert.GreaterOrEqual(t, snap.EventsLast24h, 2)
}

func TestEventsFilterBySeverity(t *testing.T) {
	s, _ := testServer(t, true)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var body struct {
		Events []types.SecurityEvent `json:"events"`
		Count  int                   `json:"count"`
	}
	status := getJSON(t, ts, "/api/v1/events?severity=HIGH&limit=5", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.LessOrEqual(t, body.Count, 5)
	for _, event := range body.Events {
		assert.Equal(t, types.SeverityHigh, event.Severity)
	}
}

func TestEventsRejectBadSince(t *testing.T) {
	s, _ := testServer(t, true)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	status := getJSON(t, ts, "/api/v1/events?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEventByIDAndRespond(t *testing.T) {
	s, g := testServer(t, true)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	events, err := g.Events(types.EventFilter{Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	id := events[0].ID

	var event types.SecurityEvent
	status := getJSON(t, ts, "/api/v1/events/"+id, &event)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, event.ID)

	resp, err := ts.Client().Post(ts.URL+"/api/v1/events/"+id+"/respond", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestRespondUnknownEventIs404(t *testing.T) {
	s, _ := testServer(t, true)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/api/v1/events/no-such-id/respond", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResourcesFilterByMinRisk(t *testing.T) {
	s, _ := testServer(t, true)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var body struct {
		Resources []types.Resource `json:"resources"`
	}
	status := getJSON(t, ts, "/api/v1/resources?min_risk=0.7", &body)
	assert.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, body.Resources)
	for _, resource := range body.Resources {
		assert.GreaterOrEqual(t, resource.RiskScore, 0.7)
	}
}

func TestEventTypeAnalytics(t *testing.T) {
	s, _ := testServer(t, true)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var body struct {
		Counts map[string]int `json:"counts"`
	}
	status := getJSON(t, ts, "/api/v1/analytics/event-types", &body)
	assert.Equal(t, http.StatusOK, status)
	total := 0
	for _, n := range body.Counts {
		total += n
	}
	assert.GreaterOrEqual(t, total, 2)

	status = getJSON(t, ts, "/api/v1/analytics/event-types?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t, false)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStreamDeliversBroadcasts(t *testing.T) {
	s, g := testServer(t, true)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	// drive one more ingestion so the hub has something to send
	go func() {
		_, _ = g.ScanOnce(context.Background())
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event types.SecurityEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.NotEmpty(t, event.ID)
	assert.NotEmpty(t, event.EventType)
}
