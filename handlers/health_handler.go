package handlers

import (
	"net/http"

	"github.com/taskni/llm-gateway/services/breaker"
	"github.com/taskni/llm-gateway/services/providers"
	"github.com/taskni/llm-gateway/utils"
)

// HealthHandler reports process liveness and provider readiness
type HealthHandler struct {
	registry *providers.Registry
	breakers *breaker.Registry
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(registry *providers.Registry, breakers *breaker.Registry) *HealthHandler {
	return &HealthHandler{registry: registry, breakers: breakers}
}

// HandleHealthz handles GET /healthz
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]string{"status": "ok"})
}

// HandleReadyz handles GET /readyz. The process is ready when at least one
// provider is registered; breaker states are included for diagnostics.
func (h *HealthHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	states := make(map[string]string)
	for name, state := range h.breakers.States() {
		states[name] = state.String()
	}

	body := map[string]interface{}{
		"status":    "ready",
		"providers": h.registry.Names(),
		"breakers":  states,
	}

	if h.registry.Len() == 0 {
		body["status"] = "not_ready"
		_ = utils.WriteJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	_ = utils.WriteOK(w, body)
}
