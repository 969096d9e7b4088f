package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficpilot/internal/config"
	"trafficpilot/internal/metrics"
	"trafficpilot/internal/models"
	"trafficpilot/internal/orchestrator"
	"trafficpilot/internal/status"
)

type fakeService struct {
	mu       sync.Mutex
	started  []models.SessionConfig
	startErr error
	statuses map[string]models.BotStatusEvent
	running  map[string]bool
}

func (f *fakeService) StartSession(cfg models.SessionConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.TrimSpace(string(cfg.Target)) == "" {
		return "", orchestrator.ErrMissingTarget
	}
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, cfg)
	return "sess-1", nil
}

func (f *fakeService) Started() []models.SessionConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SessionConfig(nil), f.started...)
}

func (f *fakeService) GetSessionStatus(_ context.Context, id string) (models.BotStatusEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.statuses[id]
	if !ok {
		return models.BotStatusEvent{}, orchestrator.ErrSessionNotFound
	}
	return event, nil
}

func (f *fakeService) StopSession(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running[id] {
		return false
	}
	delete(f.running, id)
	return true
}

func (f *fakeService) Running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running)
}

type testServer struct {
	svc     *fakeService
	hub     *status.Hub
	metrics *metrics.Metrics
	http    *httptest.Server
}

func newTestServer(t *testing.T, cfg config.ServerConfig) *testServer {
	t.Helper()

	svc := &fakeService{
		statuses: map[string]models.BotStatusEvent{},
		running:  map[string]bool{},
	}
	hub := status.NewHub()
	m := metrics.New()

	srv := NewServer(cfg, svc, hub, m, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	return &testServer{svc: svc, hub: hub, metrics: m, http: ts}
}

func (ts *testServer) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(ts.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestStartBot_Accepted(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	resp, body := ts.post(t, "/api/start-bot", `{"target":"youtube","ytKeyword":"lofi beats","watchDuration":1.5,"ytLike":true}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "sess-1", body["sessionId"])
	assert.NotEmpty(t, body["message"])

	require.Len(t, ts.svc.Started(), 1)
	cfg := ts.svc.Started()[0]
	assert.Equal(t, models.Target("youtube"), cfg.Target)
	assert.Equal(t, "lofi beats", cfg.VideoKeyword)
	assert.InDelta(t, 1.5, cfg.WatchDuration, 0.0001)
	assert.True(t, cfg.Like)
}

func TestStartBot_MissingTarget(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	resp, body := ts.post(t, "/api/start-bot", `{"webUrl":"https://example.com"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Target is required", body["error"])
	assert.Empty(t, ts.svc.Started())
}

func TestStartBot_InvalidBody(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	resp, body := ts.post(t, "/api/start-bot", `{not json`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "invalid request body")
}

func TestStartBot_SessionLimit(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	ts.svc.startErr = orchestrator.ErrSessionLimit

	resp, body := ts.post(t, "/api/start-bot", `{"target":"website"}`)

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	series, err := testutil.GatherAndCount(ts.metrics.Registry(), "trafficpilot_starts_rejected_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestStartBot_RateLimited(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{StartRatePerMinute: 1, StartBurst: 1})

	resp, _ := ts.post(t, "/api/start-bot", `{"target":"website"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))

	resp, body := ts.post(t, "/api/start-bot", `{"target":"website"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, false, body["success"])
	assert.Len(t, ts.svc.Started(), 1)
}

func TestBotStatus(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	ts.svc.statuses["abc"] = models.BotStatusEvent{
		SessionID: "abc",
		Status:    models.StatusProgress,
		Message:   "Watching video...",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	resp, err := http.Get(ts.http.URL + "/api/bot-status/abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var event models.BotStatusEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&event))
	assert.Equal(t, models.StatusProgress, event.Status)
	assert.Equal(t, "Watching video...", event.Message)

	missing, err := http.Get(ts.http.URL + "/api/bot-status/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestStopBot(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	ts.svc.running["abc"] = true

	resp, body := ts.post(t, "/api/stop-bot", `{"sessionId":"abc"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["stopped"])

	resp, body = ts.post(t, "/api/stop-bot", `{"sessionId":"abc"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["stopped"])

	resp, body = ts.post(t, "/api/stop-bot", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{StartRatePerMinute: 1, StartBurst: 1})

	req, err := http.NewRequest(http.MethodOptions, ts.http.URL+"/api/start-bot", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, ts.svc.Started())
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	ts.svc.running["a"] = true

	resp, err := http.Get(ts.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.ActiveSessions)

	ts.metrics.SessionStarted(models.TargetWebsite)
	mresp, err := http.Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestStaticFrontEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>panel</h1>"), 0o644))

	ts := newTestServer(t, config.ServerConfig{StaticDir: dir})

	resp, err := http.Get(ts.http.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<h1>panel</h1>")
}

func TestClientLimiter(t *testing.T) {
	l := NewClientLimiter(60, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// Buckets are per client
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestClientAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.7:51234"
	assert.Equal(t, "192.168.1.7", clientAddress(r))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientAddress(r))
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialObserver(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocket_StreamsStatusEvents(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	conn := dialObserver(t, ts)

	ts.hub.Publish(models.BotStatusEvent{SessionID: "abc", Status: models.StatusStarting, Message: "Launching browser"})

	f := readFrame(t, conn)
	assert.Equal(t, status.EventBotStatus, f.Event)

	var event models.BotStatusEvent
	require.NoError(t, json.Unmarshal(f.Data, &event))
	assert.Equal(t, "abc", event.SessionID)
	assert.Equal(t, models.StatusStarting, event.Status)
	assert.False(t, event.Timestamp.IsZero())
}

func TestWebSocket_RelaysCommands(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	conn := dialObserver(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"hello","data":1}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"bot-command","data":{"action":"pause","ids":["a","b"]}}`)))

	f := readFrame(t, conn)
	assert.Equal(t, status.EventBotUpdate, f.Event)
	assert.JSONEq(t, `{"action":"pause","ids":["a","b"]}`, string(f.Data))
}

func TestWebSocket_DisconnectUnsubscribes(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	conn := dialObserver(t, ts)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return ts.hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
