package handler

import (
	"net/http"
	"strconv"

	"github.com/helpdesk-ai/support-engine/internal/index"
	natsclient "github.com/helpdesk-ai/support-engine/internal/nats"
)

// HealthHandler exposes liveness and readiness probes.
type HealthHandler struct {
	natsClient *natsclient.Client
	idx        index.Index
}

func NewHealthHandler(natsClient *natsclient.Client, idx index.Index) *HealthHandler {
	return &HealthHandler{natsClient: natsClient, idx: idx}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready. The service answers conversations without
// NATS, but audit and escalation delivery need it, so readiness gates
// on the connection.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{
		"nats": "connected",
	}
	status := http.StatusOK

	if h.natsClient == nil || !h.natsClient.IsConnected() {
		components["nats"] = "disconnected"
		status = http.StatusServiceUnavailable
	}
	if h.idx != nil {
		components["index_chunks"] = strconv.Itoa(h.idx.Size())
	}

	writeJSON(w, status, map[string]any{
		"status":     statusWord(status),
		"components": components,
	})
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ready"
	}
	return "not ready"
}
