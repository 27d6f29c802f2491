package handlers

import "net/http"

// HealthHandlers serves the liveness probe.
type HealthHandlers struct{}

func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
