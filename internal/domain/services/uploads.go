package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatguard-lab/internal/config"
	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

// BlobStore is the temp-file store backing in-flight uploads. Writes are
// positional and must not truncate the file.
type BlobStore interface {
	Preallocate(name string, size int64) error
	WriteAt(name string, offset int64, data []byte) error
	ReadAll(name string) ([]byte, error)
	Remove(name string) error
}

// UploadManager assembles chunked uploads into complete files. Sessions are
// held in an explicit in-memory store guarded by a mutex; chunk payloads go
// straight to the blob store at their byte offset, so nothing buffers the
// whole file in memory and chunks may arrive in any order.
type UploadManager struct {
	cfg    config.UploadConfig
	store  BlobStore
	logger *logger.Logger

	mu       sync.Mutex
	sessions map[string]*models.UploadSession
}

// NewUploadManager creates a new upload session manager
func NewUploadManager(cfg config.UploadConfig, store BlobStore, log *logger.Logger) *UploadManager {
	return &UploadManager{
		cfg:      cfg,
		store:    store,
		logger:   log.WithComponent("upload-manager"),
		sessions: make(map[string]*models.UploadSession),
	}
}

// Initialize creates a new upload session and pre-allocates its temp file
func (m *UploadManager) Initialize(fileName string, totalSize int64, ownerID string) (string, error) {
	if totalSize <= 0 {
		return "", fmt.Errorf("%w: total size must be positive", models.ErrInvalidArgument)
	}
	if totalSize > m.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", models.ErrPayloadTooLarge, totalSize, m.cfg.MaxFileSize)
	}

	sessionID := uuid.New().String()
	safeName := sanitizeFileName(fileName)
	tempName := sessionID + "_" + safeName

	chunkSize := m.cfg.ChunkSize
	totalChunks := int((totalSize + chunkSize - 1) / chunkSize)

	if err := m.store.Preallocate(tempName, totalSize); err != nil {
		return "", err
	}

	now := time.Now()
	session := &models.UploadSession{
		ID:          sessionID,
		OwnerID:     ownerID,
		FileName:    safeName,
		TempPath:    tempName,
		TotalSize:   totalSize,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cfg.SessionTTL),
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", sessionID).
		Str("file_name", safeName).
		Int64("total_size", totalSize).
		Int("total_chunks", totalChunks).
		Msg("upload session initialized")

	return sessionID, nil
}

// UploadChunk writes one chunk at its byte offset. Chunks for the same
// session may arrive concurrently; each targets a disjoint byte range of
// the pre-allocated file, and only the counter update is serialized.
func (m *UploadManager) UploadChunk(sessionID string, chunkIndex int, data []byte) error {
	m.mu.Lock()
	session, ok := m.lookupLocked(sessionID)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: upload session %s", models.ErrNotFound, sessionID)
	}
	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		m.mu.Unlock()
		return fmt.Errorf("%w: chunk index %d out of range [0,%d)", models.ErrInvalidArgument, chunkIndex, session.TotalChunks)
	}
	expected := session.ExpectedChunkSize(chunkIndex)
	if int64(len(data)) != expected {
		m.mu.Unlock()
		return fmt.Errorf("%w: chunk %d is %d bytes, expected %d", models.ErrSizeMismatch, chunkIndex, len(data), expected)
	}
	tempPath := session.TempPath
	offset := int64(chunkIndex) * session.ChunkSize
	m.mu.Unlock()

	if err := m.store.WriteAt(tempPath, offset, data); err != nil {
		return err
	}

	m.mu.Lock()
	if session, ok := m.lookupLocked(sessionID); ok {
		session.ReceivedChunks++
	}
	m.mu.Unlock()

	return nil
}

// Finalize reads back the assembled file, destroys the session and returns
// the payload. The session is removed from the visible set before any I/O,
// so a concurrent expiry sweep or second Finalize finds nothing.
func (m *UploadManager) Finalize(sessionID string) ([]byte, error) {
	m.mu.Lock()
	session, ok := m.lookupLocked(sessionID)
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: upload session %s", models.ErrNotFound, sessionID)
	}
	if !session.Complete() {
		received, total := session.ReceivedChunks, session.TotalChunks
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d chunks received", models.ErrIncompleteUpload, received, total)
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	data, err := m.store.ReadAll(session.TempPath)
	if err != nil {
		return nil, err
	}

	if removeErr := m.store.Remove(session.TempPath); removeErr != nil {
		m.logger.Warn().Err(removeErr).Str("session_id", sessionID).Msg("failed to remove temp file")
	}

	if int64(len(data)) != session.TotalSize {
		return nil, fmt.Errorf("%w: assembled %d bytes, declared %d", models.ErrSizeMismatch, len(data), session.TotalSize)
	}

	m.logger.Info().
		Str("session_id", sessionID).
		Int("bytes", len(data)).
		Msg("upload finalized")

	return data, nil
}

// Cancel destroys a session and its temp file. Unknown sessions are a no-op.
func (m *UploadManager) Cancel(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	if err := m.store.Remove(session.TempPath); err != nil {
		m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to remove temp file on cancel")
	}

	m.logger.Debug().Str("session_id", sessionID).Msg("upload session cancelled")
}

// Describe returns a snapshot of a session's metadata
func (m *UploadManager) Describe(sessionID string) (*models.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.lookupLocked(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: upload session %s", models.ErrNotFound, sessionID)
	}
	snapshot := *session
	return &snapshot, nil
}

// Progress returns a point-in-time read of a session's progress
func (m *UploadManager) Progress(sessionID string) (*models.UploadProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.lookupLocked(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: upload session %s", models.ErrNotFound, sessionID)
	}

	return &models.UploadProgress{
		SessionID:      sessionID,
		Percent:        float64(session.ReceivedChunks) / float64(session.TotalChunks) * 100,
		ReceivedChunks: session.ReceivedChunks,
		TotalChunks:    session.TotalChunks,
		IsComplete:     session.Complete(),
	}, nil
}

// Run drives the periodic expiry sweep until the context is cancelled
func (m *UploadManager) Run(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", interval).Msg("expiry sweep started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("expiry sweep stopped")
			return
		case <-ticker.C:
			if reclaimed := m.sweep(time.Now()); reclaimed > 0 {
				m.logger.Info().Int("reclaimed", reclaimed).Msg("expired upload sessions reclaimed")
			}
		}
	}
}

// sweep cancels every session past its expiration and returns the count
func (m *UploadManager) sweep(now time.Time) int {
	m.mu.Lock()
	expired := make([]*models.UploadSession, 0)
	for id, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		if err := m.store.Remove(session.TempPath); err != nil {
			m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to remove expired temp file")
		}
	}
	return len(expired)
}

// SessionCount returns the number of live sessions
func (m *UploadManager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// lookupLocked resolves a session, treating expired ones as absent.
// Caller must hold m.mu.
func (m *UploadManager) lookupLocked(sessionID string) (*models.UploadSession, bool) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, false
	}
	return session, true
}

// sanitizeFileName strips path separators and control characters so the
// temp-file name cannot escape the upload directory
func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			// drop control characters
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "upload.dat"
	}
	return cleaned
}
