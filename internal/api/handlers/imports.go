package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chatguard-lab/internal/domain/services"
	"chatguard-lab/internal/infrastructure/database/repository"
	"chatguard-lab/pkg/logger"
)

// ImportsHandler handles import status, results, listing and deletion
type ImportsHandler struct {
	orchestrator *services.ImportOrchestrator
	repos        *repository.Repositories
	logger       *logger.Logger
}

// NewImportsHandler creates a new ImportsHandler
func NewImportsHandler(orchestrator *services.ImportOrchestrator, repos *repository.Repositories, log *logger.Logger) *ImportsHandler {
	return &ImportsHandler{
		orchestrator: orchestrator,
		repos:        repos,
		logger:       log.WithComponent("imports-handler"),
	}
}

// List handles GET /api/v1/imports
func (h *ImportsHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 50, 200)

	imports, err := h.repos.Imports.ListByOwner(r.Context(), ownerID(r), offset, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"imports": imports,
		"offset":  offset,
		"limit":   limit,
	})
}

// Status handles GET /api/v1/imports/{id}/status
func (h *ImportsHandler) Status(w http.ResponseWriter, r *http.Request) {
	importID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid import id")
		return
	}

	info, err := h.orchestrator.GetStatus(r.Context(), importID, ownerID(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// Results handles GET /api/v1/imports/{id}/results
func (h *ImportsHandler) Results(w http.ResponseWriter, r *http.Request) {
	importID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid import id")
		return
	}

	offset, limit := pagination(r, 0, 1000)
	report, err := h.orchestrator.GetResults(r.Context(), importID, ownerID(r), offset, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Delete handles DELETE /api/v1/imports/{id}
func (h *ImportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	importID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid import id")
		return
	}

	if err := h.orchestrator.DeleteImport(r.Context(), importID, ownerID(r)); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pagination reads offset/limit query params with a default and a ceiling
func pagination(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}
