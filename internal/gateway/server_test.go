package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zslzxy/toolmesh/internal/mcp"
	"github.com/zslzxy/toolmesh/internal/metrics"
	"github.com/zslzxy/toolmesh/internal/version"
)

type staticStatuses []mcp.ServerStatus

func (s staticStatuses) Statuses() []mcp.ServerStatus {
	return s
}

func decodeJSON(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(metrics.NewRecorder(), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeJSON(t, rr.Body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body["status"])
	}
	if body["request_id"] == "" {
		t.Fatal("expected non-empty request_id")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	h := NewHandler(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	req.Header.Set("X-Request-ID", "req-9")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
	body := decodeJSON(t, rr.Body)
	if body["request_id"] != "req-9" {
		t.Fatalf("expected propagated request id, got %v", body["request_id"])
	}
}

func TestVersionEndpoint(t *testing.T) {
	h := NewHandler(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeJSON(t, rr.Body)
	if body["version"] != version.Version {
		t.Fatalf("expected version=%s, got %v", version.Version, body["version"])
	}
}

func TestServersEndpoint(t *testing.T) {
	h := NewHandler(nil, staticStatuses{
		{Name: "files", Transport: mcp.TransportProcess, State: mcp.StateConnected, ToolCount: 4},
	})
	req := httptest.NewRequest(http.MethodGet, "/servers", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	body := decodeJSON(t, rr.Body)
	servers, ok := body["servers"].([]any)
	if !ok || len(servers) != 1 {
		t.Fatalf("unexpected servers payload: %v", body["servers"])
	}
	first := servers[0].(map[string]any)
	if first["name"] != "files" || first["state"] != "connected" || first["tool_count"] != float64(4) {
		t.Fatalf("unexpected server entry: %v", first)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.ObserveTurn(time.Second, nil)

	h := NewHandler(recorder, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `toolmesh_model_turns_total{outcome="ok"} 1`) {
		t.Fatalf("expected turn counter, got:\n%s", rr.Body.String())
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := New("127.0.0.1:0", metrics.NewRecorder(), nil)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start after Shutdown should return nil, got %v", err)
	}
}
