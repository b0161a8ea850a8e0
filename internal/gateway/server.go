package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zslzxy/toolmesh/internal/bus"
	"github.com/zslzxy/toolmesh/internal/mcp"
	"github.com/zslzxy/toolmesh/internal/metrics"
	"github.com/zslzxy/toolmesh/internal/version"
)

// StatusSource reports the tool server states of the running process.
type StatusSource interface {
	Statuses() []mcp.ServerStatus
}

// Server exposes health, version, server status and Prometheus metrics.
type Server struct {
	addr       string
	recorder   *metrics.Recorder
	statuses   StatusSource
	httpServer *http.Server
}

func New(addr string, recorder *metrics.Recorder, statuses StatusSource) *Server {
	s := &Server{
		addr:     strings.TrimSpace(addr),
		recorder: recorder,
		statuses: statuses,
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           NewHandler(recorder, statuses),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Addr() string {
	return s.addr
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("metrics listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewHandler(recorder *metrics.Recorder, statuses StatusSource) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		out := []serverStatus{}
		if statuses != nil {
			for _, st := range statuses.Statuses() {
				out = append(out, serverStatus{
					Name:      st.Name,
					Transport: string(st.Transport),
					State:     string(st.State),
					ToolCount: st.ToolCount,
					Message:   st.Message,
				})
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"servers":    out,
			"request_id": requestID,
		})
	})
	return mux
}

type serverStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	State     string `json:"state"`
	ToolCount int    `json:"tool_count"`
	Message   string `json:"message,omitempty"`
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return bus.NewRequestID()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
