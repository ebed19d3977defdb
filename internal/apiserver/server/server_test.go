package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-bridge/internal/apiserver/callback"
	"automation-bridge/internal/apiserver/notify"
	"automation-bridge/internal/shared/cache"
	"automation-bridge/internal/shared/schema"
	"automation-bridge/pkg/logging"
)

type staticDownloads struct{}

func (staticDownloads) DownloadURL(ctx context.Context, name string) (string, error) {
	return "https://cdn.local/" + name, nil
}

type testServer struct {
	srv      *httptest.Server
	builder  *callback.URLBuilder
	registry *notify.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	v, err := schema.Load()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := NewMetricsWithRegistry("test", reg, reg)
	registry := notify.NewRegistry()
	signer := callback.NewSigner("secret", time.Hour)
	dispatcher := callback.NewDispatcher(registry, staticDownloads{}, callback.DispatcherOptions{
		Validator: v,
		Logger:    logging.Discard(),
		Observer:  metrics,
	})

	h := NewHandler(Deps{
		Registry:    registry,
		Signer:      signer,
		Dispatcher:  dispatcher,
		ReplayGuard: cache.NewMemoryCache(),
		Validator:   v,
		Metrics:     metrics,
		Logger:      logging.Discard(),
	})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, builder: callback.NewURLBuilder(srv.URL, signer), registry: registry}
}

func (ts *testServer) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/designautomation"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readMessage(t, conn)
	require.Equal(t, notify.EventConnectionID, msg.Type)
	id, ok := msg.Data.(string)
	require.True(t, ok)
	return conn, id
}

func readMessage(t *testing.T, conn *websocket.Conn) notify.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg notify.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// TestCallbackReachesRequester 回调只推送给发起作业的连接，且顺序固定
func TestCallbackReachesRequester(t *testing.T) {
	ts := newTestServer(t)
	conn, id := ts.dial(t)
	other, _ := ts.dial(t)

	cbURL, err := ts.builder.Build(id, "20240305140709_output_a.dwg")
	require.NoError(t, err)

	body := `{"id":"wi-1","status":"success"}`
	resp, err := http.Post(cbURL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	first := readMessage(t, conn)
	assert.Equal(t, notify.EventOnComplete, first.Type)
	assert.Equal(t, body, first.Data)

	second := readMessage(t, conn)
	assert.Equal(t, notify.EventDownloadResult, second.Type)
	assert.Equal(t, "https://cdn.local/20240305140709_output_a.dwg", second.Data)

	// 其他连接收不到任何推送
	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestCallbackRejectsForgedState(t *testing.T) {
	ts := newTestServer(t)
	_, id := ts.dial(t)

	cbURL, err := ts.builder.Build("someone-else", "out.dwg")
	require.NoError(t, err)
	forged := strings.Replace(cbURL, "id=someone-else", "id="+id, 1)

	resp, err := http.Post(forged, "application/json", strings.NewReader(`{"status":"success"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.dial(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","connections":1}`, string(b))

	resp, err = http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(b), "test_websocket_connections_active 1")
	assert.Contains(t, string(b), `test_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestOpenAPIDocument(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/api/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "openapi: 3.0.3")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.srv.URL+"/api/aps/designautomation/workitems", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_AllowList(t *testing.T) {
	h := corsMiddleware([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/health", normalizePath("/health"))
	assert.Equal(t, "/api/aps/designautomation/workitems", normalizePath("/api/aps/designautomation/workitems/"))
	assert.Equal(t, "other", normalizePath("/api/unknown/123"))
}
