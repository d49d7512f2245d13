package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatguard-lab/internal/domain/models"
	"chatguard-lab/internal/domain/services"
	"chatguard-lab/internal/infrastructure/cache"
	"chatguard-lab/internal/infrastructure/database/repository"
	"chatguard-lab/internal/streaming"
	"chatguard-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health  *HealthHandler
	Uploads *UploadsHandler
	Imports *ImportsHandler
	Stream  *StreamHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Uploads      *services.UploadManager
	Orchestrator *services.ImportOrchestrator
	Cache        *cache.RedisCache
	Repos        *repository.Repositories
	WSHub        *streaming.WebSocketHub
	Logger       *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Cache, deps.Repos, deps.Logger),
		Uploads: NewUploadsHandler(deps.Uploads, deps.Orchestrator, deps.Logger),
		Imports: NewImportsHandler(deps.Orchestrator, deps.Repos, deps.Logger),
		Stream:  NewStreamHandler(deps.WSHub, deps.Logger),
	}
}

// ownerID resolves the request's owner identity. Authorization proper is out
// of scope; scoping still needs a stable key.
func ownerID(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return owner
	}
	return "anonymous"
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps sentinel domain errors onto HTTP statuses
func respondDomainError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError

	switch {
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrPayloadTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, models.ErrInvalidArgument),
		errors.Is(err, models.ErrSizeMismatch),
		errors.Is(err, models.ErrIncompleteUpload),
		errors.Is(err, models.ErrInvalidFormat):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "validation failed",
			"reasons": verr.Reasons,
		})
	case errors.Is(err, models.ErrUnsupportedPlatform):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrDuplicateImport):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNotCompleted):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
