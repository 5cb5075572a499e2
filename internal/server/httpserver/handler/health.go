package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. The store must answer within two seconds.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrStorageUnavailable.Code, "not ready", map[string]string{
				"reason": err.Error(),
			})
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":      "ready",
		"time":        time.Now().UTC().Format(time.RFC3339),
		"controllers": h.registry.Count(),
	})
}
