package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the chat export tool a file came from
type Platform string

const (
	PlatformWhatsApp Platform = "whatsapp"
	PlatformTelegram Platform = "telegram"
	PlatformUnknown  Platform = "unknown"
)

// ParsePlatform normalizes a platform string, returning PlatformUnknown
// for anything unrecognized
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "whatsapp":
		return PlatformWhatsApp
	case "telegram":
		return PlatformTelegram
	default:
		return PlatformUnknown
	}
}

func (p Platform) String() string {
	return string(p)
}

// ImportStatus is the lifecycle state of an import record. Transitions move
// strictly forward (UPLOADING -> VALIDATING -> PARSING -> ANALYZING ->
// COMPLETED), with FAILED reachable from any non-terminal state.
type ImportStatus string

const (
	StatusUploading  ImportStatus = "UPLOADING"
	StatusValidating ImportStatus = "VALIDATING"
	StatusParsing    ImportStatus = "PARSING"
	StatusAnalyzing  ImportStatus = "ANALYZING"
	StatusCompleted  ImportStatus = "COMPLETED"
	StatusFailed     ImportStatus = "FAILED"
)

// Terminal reports whether no further transitions are possible
func (s ImportStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var statusOrder = map[ImportStatus]int{
	StatusUploading:  0,
	StatusValidating: 1,
	StatusParsing:    2,
	StatusAnalyzing:  3,
	StatusCompleted:  4,
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// step. FAILED is reachable from any non-terminal state; there are no cycles.
func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	cur, ok := statusOrder[s]
	nxt, ok2 := statusOrder[next]
	return ok && ok2 && nxt == cur+1
}

// KeyFinding is one highly-scored message or participant surfaced in the
// final report
type KeyFinding struct {
	Kind    string   `json:"kind"` // "message" or "participant"
	RefID   string   `json:"ref_id"`
	Score   int      `json:"score"`
	Flags   []string `json:"flags"`
	Preview string   `json:"preview,omitempty"`
}

// ImportRecord is the aggregate root for one chat import. It is created at
// upload-finalize time and mutated exclusively by the orchestrator as
// pipeline stages complete.
type ImportRecord struct {
	ID       uuid.UUID    `json:"id" db:"id"`
	OwnerID  string       `json:"owner_id" db:"owner_id"`
	Platform Platform     `json:"platform" db:"platform"`
	Status   ImportStatus `json:"status" db:"status"`

	// File metadata
	FileName    string `json:"file_name" db:"file_name"`
	FileSize    int64  `json:"file_size" db:"file_size"`
	ContentHash string `json:"content_hash" db:"content_hash"`

	// Aggregates written as stages complete
	MessageCount     int           `json:"message_count" db:"message_count"`
	ParticipantCount int           `json:"participant_count" db:"participant_count"`
	RiskScore        float64       `json:"risk_score" db:"risk_score"`
	RiskLevel        RiskLevel     `json:"risk_level" db:"risk_level"`
	Summary          string        `json:"summary,omitempty" db:"summary"`
	KeyFindings      []KeyFinding  `json:"key_findings,omitempty" db:"-"`
	DateFrom         *time.Time    `json:"date_from,omitempty" db:"date_from"`
	DateTo           *time.Time    `json:"date_to,omitempty" db:"date_to"`
	ProcessingTime   time.Duration `json:"processing_time" db:"processing_time_ms"`

	// Failure reason; set only when Status is FAILED
	Error string `json:"error,omitempty" db:"error"`

	// Warnings accumulated during parsing (unparsed lines, dropped messages)
	Warnings []string `json:"warnings,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ImportStatusInfo is the compact status view served to pollers
type ImportStatusInfo struct {
	ID               uuid.UUID     `json:"id"`
	Status           ImportStatus  `json:"status"`
	Platform         Platform      `json:"platform"`
	MessageCount     int           `json:"message_count"`
	ParticipantCount int           `json:"participant_count"`
	RiskScore        float64       `json:"risk_score"`
	RiskLevel        RiskLevel     `json:"risk_level,omitempty"`
	ProcessingTime   time.Duration `json:"processing_time"`
	Error            string        `json:"error,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ImportReport is the full result returned once an import completes
type ImportReport struct {
	Record       *ImportRecord       `json:"record"`
	Participants []ParsedParticipant `json:"participants"`
	Messages     []ParsedMessage     `json:"messages,omitempty"`
}
