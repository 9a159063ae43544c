package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

const probeTimeout = 3 * time.Second

type storeProbe interface {
	Ping(ctx context.Context) error
	Capability() domain.BackendCapability
}

// HealthHandler serves the liveness, readiness and detailed health endpoints.
type HealthHandler struct {
	store   storeProbe
	backend string
	version string
}

// NewHealthHandler creates a HealthHandler. backend names the store
// component in the detailed report.
func NewHealthHandler(store storeProbe, backend, version string) *HealthHandler {
	return &HealthHandler{store: store, backend: backend, version: version}
}

// HealthResponse is the JSON body of every health endpoint.
type HealthResponse struct {
	Status     string                `json:"status"`
	Version    string                `json:"version,omitempty"`
	Components map[string]CompStatus `json:"components,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CompStatus reports one component. ClaimStrategy names the conditional
// write path the store uses for claims.
type CompStatus struct {
	Status        string `json:"status"`
	Latency       string `json:"latency,omitempty"`
	ClaimStrategy string `json:"claim_strategy,omitempty"`
}

// Live always answers 200 while the process serves HTTP.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now()})
}

// Ready answers 200 when the store is reachable, else 503 with Retry-After.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	comp := h.probe(r.Context())
	if comp.Status != "ok" {
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: comp.Status, Timestamp: time.Now()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now()})
}

// Health reports the build version and the store component in detail.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	comp := h.probe(r.Context())

	status := http.StatusOK
	if comp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{
		Status:     comp.Status,
		Version:    h.version,
		Components: map[string]CompStatus{h.backend: comp},
		Timestamp:  time.Now(),
	})
}

func (h *HealthHandler) probe(ctx context.Context) CompStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		return CompStatus{Status: "down", ClaimStrategy: string(h.store.Capability())}
	}
	return CompStatus{
		Status:        "ok",
		Latency:       time.Since(start).String(),
		ClaimStrategy: string(h.store.Capability()),
	}
}
