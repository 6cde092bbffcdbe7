// Package status serves the read-only endpoints consumed by the UI layer.
package status

import (
	"encoding/json"
	"log"
	"net/http"

	"jobpilot/automation-service/internal/queue"
	"jobpilot/automation-service/internal/ratelimit"
)

// Handler exposes rate-limit and queue status over HTTP.
type Handler struct {
	limiter *ratelimit.Limiter
	queue   *queue.Service
	version string
}

// NewHandler returns a configured Handler.
func NewHandler(limiter *ratelimit.Limiter, q *queue.Service, version string) *Handler {
	return &Handler{limiter: limiter, queue: q, version: version}
}

// RegisterRoutes attaches all status routes to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /status/rate-limit", h.handleRateLimit)
	mux.HandleFunc("GET /status/queue", h.handleQueue)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "automation-service",
		"version": h.version,
	})
}

func (h *Handler) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	st, err := h.limiter.Status(r.Context(), r.URL.Query().Get("candidate"))
	if err != nil {
		log.Printf("[status] rate-limit status error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	st, err := h.queue.Status(r.Context(), r.URL.Query().Get("candidate"))
	if err != nil {
		log.Printf("[status] queue status error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
