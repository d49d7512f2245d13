package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatguard-lab/internal/streaming"
	"chatguard-lab/pkg/logger"
)

// StreamHandler exposes the realtime import-event WebSocket
type StreamHandler struct {
	hub    *streaming.WebSocketHub
	logger *logger.Logger
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(hub *streaming.WebSocketHub, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		logger: log.WithComponent("stream-handler"),
	}
}

// Events handles GET /api/v1/imports/{id}/events, upgrading to a WebSocket
// scoped to one import
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWebSocket(w, r, chi.URLParam(r, "id"))
}

// Stats handles GET /api/v1/streaming/stats
func (h *StreamHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"connected_clients": h.hub.ClientCount(),
	})
}
