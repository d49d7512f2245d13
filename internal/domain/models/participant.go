package models

import (
	"time"
)

// ParticipantRole represents a sender's role within the chat
type ParticipantRole string

const (
	RoleAdmin     ParticipantRole = "admin"
	RoleModerator ParticipantRole = "moderator"
	RoleMember    ParticipantRole = "member"
	RoleBot       ParticipantRole = "bot"
	RoleUnknown   ParticipantRole = "unknown"
)

// ParsedParticipant is one distinct sender encountered in a chat export.
// FirstMessage/LastMessage are recomputed from the final message list after
// parsing, never accumulated incrementally, so out-of-order timestamps in
// malformed exports cannot leave them stale.
type ParsedParticipant struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Username     string          `json:"username,omitempty" db:"username"`
	PhoneNumber  string          `json:"phone_number,omitempty" db:"phone_number"`
	Role         ParticipantRole `json:"role" db:"role"`
	MessageCount int             `json:"message_count" db:"message_count"`
	FirstMessage time.Time       `json:"first_message" db:"first_message"`
	LastMessage  time.Time       `json:"last_message" db:"last_message"`

	// Assigned during the analyzing stage
	Risk *RiskAssessment `json:"risk,omitempty" db:"-"`
}
