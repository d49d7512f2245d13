package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/internal/domain/services"
	"chatguard-lab/pkg/logger"
)

// UploadsHandler handles the chunked-upload session endpoints
type UploadsHandler struct {
	uploads      *services.UploadManager
	orchestrator *services.ImportOrchestrator
	logger       *logger.Logger
}

// NewUploadsHandler creates a new UploadsHandler
func NewUploadsHandler(uploads *services.UploadManager, orchestrator *services.ImportOrchestrator, log *logger.Logger) *UploadsHandler {
	return &UploadsHandler{
		uploads:      uploads,
		orchestrator: orchestrator,
		logger:       log.WithComponent("uploads-handler"),
	}
}

type initializeRequest struct {
	FileName  string `json:"file_name"`
	TotalSize int64  `json:"total_size"`
}

// Initialize handles POST /api/v1/uploads
func (h *UploadsHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, err := h.uploads.Initialize(req.FileName, req.TotalSize, ownerID(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

// UploadChunk handles POST /api/v1/uploads/{id}/chunks/{index}
func (h *UploadsHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chunk index")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read chunk body")
		return
	}

	if err := h.uploads.UploadChunk(sessionID, index, data); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"received": index})
}

type completeRequest struct {
	Platform string `json:"platform,omitempty"`
}

// Complete handles POST /api/v1/uploads/{id}/complete. It finalizes the
// upload, creates the import record, and runs the pipeline asynchronously;
// the response carries the import id for polling and the WS stream.
func (h *UploadsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	owner := ownerID(r)

	var req completeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := h.uploads.Describe(sessionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if session.OwnerID != owner {
		respondError(w, http.StatusNotFound, "upload session not found")
		return
	}

	data, err := h.uploads.Finalize(sessionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	importID, err := h.orchestrator.CreateImport(r.Context(), owner, session.FileName, session.TotalSize, models.ParsePlatform(req.Platform))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	go func() {
		if err := h.orchestrator.ProcessUploadedFile(context.Background(), importID, data); err != nil {
			h.logger.Warn().Err(err).Str("import_id", importID.String()).Msg("import processing failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"import_id": importID.String(),
		"status":    string(models.StatusUploading),
	})
}

// Cancel handles DELETE /api/v1/uploads/{id}
func (h *UploadsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.uploads.Cancel(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// Progress handles GET /api/v1/uploads/{id}/progress
func (h *UploadsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.uploads.Progress(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}
