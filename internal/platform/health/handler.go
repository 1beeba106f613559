// Package health serves liveness, readiness and status probes for the chat
// client's admin listener.
package health

import (
	"errors"
	"maps"
	"net/http"
	"sort"
	"sync"
	"time"

	"petchat/internal/connection"
	"petchat/pkg/platform/clock"
	"petchat/pkg/platform/httputil"

	"github.com/go-chi/chi/v5"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc returns nil when the dependency is usable.
type CheckFunc func() error

// ConnectionReporter exposes the chat transport status.
type ConnectionReporter interface {
	State() connection.State
}

type Handler struct {
	environment string
	clock       clock.Clock
	startTime   time.Time
	conn        ConnectionReporter

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

type Option func(*Handler)

func WithClock(c clock.Clock) Option {
	return func(h *Handler) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithConnection reports the transport in /health and registers a
// "chat_transport" readiness check that fails unless connected.
func WithConnection(conn ConnectionReporter) Option {
	return func(h *Handler) {
		h.conn = conn
	}
}

func New(environment string, opts ...Option) *Handler {
	h := &Handler{
		environment: environment,
		clock:       clock.System,
		checks:      make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.clock.Now()
	if h.conn != nil {
		conn := h.conn
		h.checks["chat_transport"] = func() error {
			if state := conn.State(); state.Status != connection.StatusConnected {
				return errors.New(state.Status.String())
			}
			return nil
		}
	}
	return h
}

// RegisterCheck adds a named readiness check.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness always answers 200 while the process runs.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness answers 503 when any registered check fails, for example
// while the chat transport is reconnecting.
func (h *Handler) HandleReadiness(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	maps.Copy(checks, h.checks)
	h.mu.RUnlock()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	response := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := checks[name](); err != nil {
			response.Checks[name] = "down: " + err.Error()
			response.Status = "not_ready"
			continue
		}
		response.Checks[name] = "up"
	}

	if response.Status != "ready" {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

type StatusResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Environment   string            `json:"environment"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Timestamp     string            `json:"timestamp"`
	Connection    *connection.State `json:"connection,omitempty"`
}

// HandleStatus reports version, environment, uptime and transport state.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	now := h.clock.Now()
	resp := StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
	if h.conn != nil {
		state := h.conn.State()
		resp.Connection = &state
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
