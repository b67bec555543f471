// Package mocktool implements a configurable fake tool backend speaking
// the tool invocation contract: POST /execute with a JSON parameter
// object, GET /health. Used by tests and for local runs against a
// backend with scripted latency and failures.
package mocktool

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Behavior controls how the mock tool responds.
type Behavior struct {
	// LatencyMs delays every execute response.
	LatencyMs int

	// FailureRate is the probability (0.0 to 1.0) that an execute call
	// returns a 500.
	FailureRate float64

	// FailFirstN makes the first N execute calls return a 500, then
	// succeed. Useful for driving retry paths deterministically.
	FailFirstN int

	// HealthStatus is the status code returned by /health.
	// Default: 200.
	HealthStatus int
}

// Config configures the mock tool server.
type Config struct {
	Addr     string
	Behavior Behavior
}

// DefaultConfig returns a config listening on an ephemeral port with a
// healthy, always-succeeding tool.
func DefaultConfig() *Config {
	return &Config{
		Addr: "127.0.0.1:0",
		Behavior: Behavior{
			HealthStatus: http.StatusOK,
		},
	}
}

// Server is the mock tool server interface.
type Server interface {
	Start() error
	Stop(ctx context.Context)
	Addr() string
	BaseURL() string
	ExecuteCalls() int64
}

// New creates a new mock tool server.
func New(config *Config) Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Behavior.HealthStatus == 0 {
		config.Behavior.HealthStatus = http.StatusOK
	}
	return &mockTool{cfg: config}
}

// StartTestServer starts a server with the given behavior and returns
// it with a cleanup function.
func StartTestServer(behavior Behavior) (server Server, cleanup func()) {
	cfg := DefaultConfig()
	cfg.Behavior = behavior
	if cfg.Behavior.HealthStatus == 0 {
		cfg.Behavior.HealthStatus = http.StatusOK
	}
	srv := New(cfg)
	if err := srv.Start(); err != nil {
		return srv, func() {}
	}
	cleanup = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	}
	return srv, cleanup
}

type mockTool struct {
	cfg        *Config
	httpServer *http.Server
	listener   net.Listener
	addr       string

	executeCount atomic.Int64
}

func (s *mockTool) Start() error {
	listenAddr := s.cfg.Addr
	if listenAddr == "" {
		listenAddr = "127.0.0.1:0"
	} else if strings.HasPrefix(listenAddr, ":") {
		listenAddr = "127.0.0.1" + listenAddr
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.addr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", s.handleExecute)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{Handler: mux}
	go s.httpServer.Serve(ln)
	return nil
}

func (s *mockTool) Stop(ctx context.Context) {
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}
}

func (s *mockTool) Addr() string {
	return s.addr
}

func (s *mockTool) BaseURL() string {
	return "http://" + s.addr
}

// ExecuteCalls returns how many execute requests have been received.
func (s *mockTool) ExecuteCalls() int64 {
	return s.executeCount.Load()
}

func (s *mockTool) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	call := s.executeCount.Add(1)

	var params map[string]any
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid parameters"})
			return
		}
	}

	if s.cfg.Behavior.LatencyMs > 0 {
		time.Sleep(time.Duration(s.cfg.Behavior.LatencyMs) * time.Millisecond)
	}

	if s.cfg.Behavior.FailFirstN > 0 && call <= int64(s.cfg.Behavior.FailFirstN) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "induced failure"})
		return
	}
	if s.cfg.Behavior.FailureRate > 0 && rand.Float64() < s.cfg.Behavior.FailureRate {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "induced failure"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"call": call,
		"echo": params,
	})
}

func (s *mockTool) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(s.cfg.Behavior.HealthStatus)
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
