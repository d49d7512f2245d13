package models

import (
	"time"
)

// UploadSession tracks one in-progress chunked upload. Chunks may arrive in
// any order; each is written at chunkIndex*ChunkSize into a pre-allocated
// temp file. Invariant: ReceivedChunks <= TotalChunks.
type UploadSession struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	FileName       string    `json:"file_name"`
	TempPath       string    `json:"-"`
	TotalSize      int64     `json:"total_size"`
	ChunkSize      int64     `json:"chunk_size"`
	TotalChunks    int       `json:"total_chunks"`
	ReceivedChunks int       `json:"received_chunks"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Complete reports whether every chunk has arrived
func (s *UploadSession) Complete() bool {
	return s.ReceivedChunks == s.TotalChunks
}

// ExpectedChunkSize returns the byte length chunk index must have: all
// chunks are ChunkSize except the last, which carries the remainder (or a
// full chunk when the total divides evenly).
func (s *UploadSession) ExpectedChunkSize(index int) int64 {
	if index == s.TotalChunks-1 {
		if rem := s.TotalSize % s.ChunkSize; rem != 0 {
			return rem
		}
	}
	return s.ChunkSize
}

// UploadProgress is a point-in-time read of a session's progress
type UploadProgress struct {
	SessionID      string  `json:"session_id"`
	Percent        float64 `json:"percent"`
	ReceivedChunks int     `json:"received_chunks"`
	TotalChunks    int     `json:"total_chunks"`
	IsComplete     bool    `json:"is_complete"`
}
